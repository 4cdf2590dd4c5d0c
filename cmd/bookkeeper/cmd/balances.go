package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var balancesPeriod string

// balancesCmd represents the balances command.
var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Display account balances for a period",
	Long: `Display the opening, period, year-to-date and closing balances of every
account with activity in the period.

Example:
  bookkeeper balances --period 2026-03`,
	Run: runBalances,
}

func init() {
	balancesCmd.Flags().StringVar(&balancesPeriod, "period", "", "Period (YYYY-MM, default current month)")
}

func runBalances(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := openApp(ctx)
	defer a.Close()

	period := balancesPeriod
	if period == "" {
		period = time.Now().Format("2006-01")
	}

	balances, err := a.store.Balances(ctx, period)
	exitOnError(err, "failed to load balances")

	fmt.Printf("\n=== Balances %s ===\n", period)
	fmt.Printf("%-10s %14s %14s %14s %14s\n", "account", "period dr", "period cr", "closing dr", "closing cr")
	for _, b := range balances {
		fmt.Printf("%-10s %14s %14s %14s %14s\n", b.AccountCode,
			b.PeriodDebit.StringFixed(2), b.PeriodCredit.StringFixed(2),
			b.ClosingDebit.StringFixed(2), b.ClosingCredit.StringFixed(2))
	}
	fmt.Println()
}
