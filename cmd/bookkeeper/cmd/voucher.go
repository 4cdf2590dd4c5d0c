package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var revertReason string

// postCmd represents the post command.
var postCmd = &cobra.Command{
	Use:   "post VOUCHER_ID...",
	Short: "Post draft vouchers",
	Long: `Post draft vouchers into the account balances.
Posting an already posted voucher does nothing.

Example:
  bookkeeper post 3f1c2a9e-...`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPost,
}

// revertCmd represents the revert command.
var revertCmd = &cobra.Command{
	Use:   "revert VOUCHER_ID",
	Short: "Revert a voucher",
	Long: `Revert a voucher. A posted voucher has its contribution removed from
the account balances. Reverting counts against the vendor's trust.

Example:
  bookkeeper revert 3f1c2a9e-... --reason "duplicate receipt"`,
	Args: cobra.ExactArgs(1),
	Run:  runRevert,
}

func init() {
	revertCmd.Flags().StringVar(&revertReason, "reason", "", "Reason for the reversal (required)")
	revertCmd.MarkFlagRequired("reason")
}

func runPost(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := openApp(ctx)
	defer a.Close()

	for _, id := range args {
		exitOnError(a.store.Post(ctx, id), "failed to post voucher "+id)
		v, err := a.store.GetVoucher(ctx, id)
		exitOnError(err, "failed to load voucher "+id)
		color.Green("✓ posted %s  %s-%s-%04d  %s", v.ID, v.Period, v.Type, v.Number, v.Amount.StringFixed(2))
	}
}

func runRevert(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := openApp(ctx)
	defer a.Close()

	id := args[0]
	exitOnError(a.store.Revert(ctx, id, revertReason), "failed to revert voucher")
	fmt.Printf("Reverted %s: %s\n", id, revertReason)
}
