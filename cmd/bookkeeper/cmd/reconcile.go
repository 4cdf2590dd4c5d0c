package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/reconcile"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/rules"
)

var reconcileWatch bool

// reconcileCmd represents the reconcile command.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match shadow entries to draft vouchers",
	Long: `Run the reconciliation sweeps:
1. Group unmatched drafts into correlation groups
2. Match pending shadow entries to drafts by amount, date and vendor
3. Verify the voucher hash chain

With --watch the sweeps repeat every RECONCILE_INTERVAL until interrupted.
SIGHUP reloads the audit rules and reseeds the chart of accounts.

Example:
  bookkeeper reconcile
  bookkeeper reconcile --watch`,
	Run: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileWatch, "watch", false, "Keep sweeping every RECONCILE_INTERVAL")
}

func runReconcile(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := openApp(ctx)
	defer a.Close()

	runner := reconcile.NewRunner(a.reconcileEngine(), a.incidents, a.cfg.Reconcile.Interval)

	if reconcileWatch {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go a.rules.Watch(ctx, hup, func(r *rules.Rules) {
			if err := a.store.SeedChart(ctx, r.Chart.Accounts()); err != nil {
				slog.Warn("Failed to reseed chart of accounts", "error", err)
			}
		})

		slog.Info("Starting reconciliation runner", "interval", a.cfg.Reconcile.Interval)
		exitOnError(runner.Run(ctx), "reconciliation runner failed")
		return
	}

	report, err := runner.RunOnce(ctx)
	exitOnError(err, "reconciliation failed")

	fmt.Println("\n=== Reconciliation ===")
	fmt.Printf("Drafts grouped:     %d (new groups: %d)\n", report.Group.Assigned, report.Group.Groups)
	fmt.Printf("Shadow entries:     %d\n", report.Match.Processed)
	fmt.Printf("Matched:            %d\n", report.Match.Matched)
	fmt.Printf("Unmatched:          %d\n", report.Match.Unmatched)
	fmt.Printf("Conflicts:          %d\n", report.Match.Conflicts)
	if report.Chain.Valid {
		color.Green("Chain:              intact (%d blocks)", report.Chain.Checked)
	} else {
		color.Red("Chain:              diverges at block %d", report.Chain.FirstDivergence)
	}
	fmt.Println()
}
