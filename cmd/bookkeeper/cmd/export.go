package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/beancount"
)

var (
	exportPeriod   string
	exportCurrency string
)

// exportCmd represents the export command.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export posted vouchers as a Beancount journal",
	Long: `Write every posted, non-reverted voucher to monthly Beancount files
under the journal directory ({LEDGER_DATA_ROOT}/journal by default).
Each run replaces the files of the exported months.

Example:
  bookkeeper export
  bookkeeper export --period 2026-03 --currency USD`,
	Run: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportPeriod, "period", "", "Period to export (YYYY-MM, default all)")
	exportCmd.Flags().StringVar(&exportCurrency, "currency", beancount.DefaultCurrency, "Commodity of the postings")
}

func runExport(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := openApp(ctx)
	defer a.Close()

	paths := a.cfg.Paths()
	converter := beancount.NewConverter(a.rules.Current().Chart.Accounts(), exportCurrency)
	exporter := beancount.NewExporter(a.store, converter, beancount.NewFileSystemRepository(paths), slog.Default())

	result, err := exporter.Export(ctx, exportPeriod)
	exitOnError(err, "failed to export journal")

	if len(result.Months) == 0 {
		color.Yellow("No posted vouchers to export")
		return
	}
	for _, month := range result.Months {
		path, _ := paths.GetMonthFilePath(month)
		fmt.Printf("  %s  %s\n", month, path)
	}
	color.Green("✓ Exported %d transactions in %d files", result.Transactions, len(result.Months))
}
