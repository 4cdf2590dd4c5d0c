package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/audit"
)

var auditStrategy string

// auditCmd represents the audit command.
var auditCmd = &cobra.Command{
	Use:   "audit FILE...",
	Short: "Audit proposed entries",
	Long: `Audit proposed entries read from YAML or JSON files.

Each file holds one proposal or a list of proposals:

  - vendor: Acme Corp
    amount: "99.90"
    category: 6601-01
    confidence: 0.92
    tags:
      department: sales

Approved proposals are written to the ledger as draft vouchers.

Example:
  bookkeeper audit proposals.yaml
  bookkeeper audit --strategy STRICT proposals.json`,
	Args: cobra.MinimumNArgs(1),
	Run:  runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditStrategy, "strategy", "", "Consensus strategy override (STRICT, BALANCED, GROWTH)")
}

func runAudit(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := openApp(ctx)
	defer a.Close()

	engine := a.auditEngine(auditStrategy)

	approved, rejected := 0, 0
	for _, path := range args {
		entries, err := readProposalFile(path)
		exitOnError(err, "failed to read proposals")
		slog.Info("Auditing proposals", "file", path, "count", len(entries))

		for _, entry := range entries {
			decision := engine.Decide(ctx, entry)
			printDecision(entry.Vendor, decision)
			if decision.Outcome() == audit.OutcomeApproved {
				approved++
			} else {
				rejected++
			}
		}
	}

	fmt.Printf("\nApproved: %d  Rejected: %d\n", approved, rejected)
}

func printDecision(vendor string, decision audit.Decision) {
	d := decision.Details()
	switch decision.(type) {
	case audit.Approved:
		color.Green("\n  ✓ APPROVED  %s", vendor)
	case audit.Rejected:
		color.Red("\n  ✗ REJECTED  %s", vendor)
	}

	fmt.Printf("    trace:  %s\n", d.TraceID)
	fmt.Printf("    risk:   %.2f  audit score: %.2f\n", d.RiskScore, d.AuditScore)
	if d.IsRisky {
		color.Yellow("    flagged as risky")
	}
	if d.VoucherID != "" {
		fmt.Printf("    voucher: %s\n", d.VoucherID)
	}
	fmt.Printf("    reason: %s\n", d.Reason)

	names := make([]string, 0, len(d.Votes))
	for name := range d.Votes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		vote := d.Votes[name]
		if vote.Passed {
			color.Green("    [pass] %s: %s", name, vote.Reason)
		} else {
			color.Red("    [veto] %s: %s", name, vote.Reason)
		}
	}
}
