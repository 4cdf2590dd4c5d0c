package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/db"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display ledger and sweep statistics",
	Long: `Display statistics about the ledger, vendors and sweeps.

Shows:
- Voucher counts (posted, reverted)
- Shadow entry counts (pending, matched)
- Vendor counts (blocked)
- Last run of each sweep
- Recent incidents

Example:
  bookkeeper stats`,
	Run: runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := openApp(ctx)
	defer a.Close()

	stats, err := a.history.GetStats(ctx)
	exitOnError(err, "failed to get statistics")

	fmt.Println("\n=== Ledger Statistics ===")
	fmt.Printf("Vouchers:              %d\n", stats.Vouchers)
	fmt.Printf("  posted:              %d\n", stats.PostedVouchers)
	fmt.Printf("  reverted:            %d\n", stats.RevertedVoucher)
	fmt.Printf("Shadow entries pending: %d\n", stats.PendingShadows)
	fmt.Printf("Shadow entries matched: %d\n", stats.MatchedShadows)
	fmt.Printf("Vendors:               %d (blocked: %d)\n", stats.Vendors, stats.BlockedVendors)
	fmt.Printf("Sweeps run:            %d\n", stats.Sweeps)

	for _, kind := range []db.SweepKind{db.SweepGroup, db.SweepMatch, db.SweepVerify} {
		last, err := a.history.LastSweep(ctx, kind)
		exitOnError(err, "failed to get last sweep")
		if last == nil {
			fmt.Printf("Last %-6s sweep:     (never)\n", kind)
			continue
		}
		fmt.Printf("Last %-6s sweep:     %s  processed=%d matched=%d conflicts=%d %s\n",
			kind, last.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			last.Processed, last.Matched, last.Conflicts, last.Detail)
	}

	events, err := a.incidents.Recent(5)
	exitOnError(err, "failed to read incident log")
	if len(events) > 0 {
		fmt.Println("\n=== Recent Incidents ===")
		for _, e := range events {
			fmt.Printf("%s  %-12s %-10s %s: %s\n", e.Time.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Source, e.Message, e.Error)
		}
	}

	fmt.Println()
}
