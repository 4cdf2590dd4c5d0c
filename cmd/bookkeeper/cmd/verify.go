package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/incident"
)

var (
	verifyPeriod  string
	verifyRebuild bool
)

// verifyCmd represents the verify command.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain and the trial balance",
	Long: `Verify ledger integrity.

This command:
1. Recomputes the voucher hash chain and reports the first divergence
2. Checks that total debits equal total credits
3. Optionally rebuilds account balances from posted vouchers

Findings are written to the incident log. The command exits non-zero when
the ledger is inconsistent.

Example:
  bookkeeper verify
  bookkeeper verify --period 2026-03 --rebuild`,
	Run: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyPeriod, "period", "", "Trial balance period (YYYY-MM, default whole ledger)")
	verifyCmd.Flags().BoolVar(&verifyRebuild, "rebuild", false, "Rebuild account balances before checking")
}

func runVerify(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := openApp(ctx)
	defer a.Close()

	if verifyRebuild {
		n, err := a.store.RebuildBalances(ctx)
		exitOnError(err, "failed to rebuild balances")
		slog.Info("Balances rebuilt", "vouchers", n)
	}

	consistent := true

	chain, err := a.store.VerifyChain(ctx)
	exitOnError(err, "failed to verify chain")
	if cerr := chain.Err(); cerr != nil {
		consistent = false
		color.Red("✗ Chain diverges at block %d (voucher %s)", chain.FirstDivergence, chain.VoucherID)
		reportIncident(ctx, a, cerr)
	} else {
		color.Green("✓ Chain intact (%d blocks)", chain.Checked)
	}

	trial, err := a.store.TrialBalance(ctx, verifyPeriod)
	exitOnError(err, "failed to compute trial balance")
	if terr := trial.Err(); terr != nil {
		consistent = false
		color.Red("✗ Trial balance mismatch: debit %s, credit %s", trial.Debit.StringFixed(2), trial.Credit.StringFixed(2))
		reportIncident(ctx, a, terr)
	} else {
		color.Green("✓ Trial balance holds: %s across %d accounts", trial.Debit.StringFixed(2), trial.Accounts)
	}

	if !consistent {
		fmt.Fprintln(os.Stderr, "ledger is inconsistent")
		a.Close()
		os.Exit(1)
	}
}

func reportIncident(ctx context.Context, a *app, err error) {
	ev := incident.Event{
		Kind:    incident.KindConsistency,
		Source:  "verify",
		Message: "Ledger verification failed",
		Error:   err.Error(),
	}
	if rerr := a.incidents.Report(ctx, ev); rerr != nil {
		slog.Error("Failed to report incident", "error", rerr)
	}
}
