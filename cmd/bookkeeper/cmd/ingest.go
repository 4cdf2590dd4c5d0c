package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/ingest"
)

var ingestDryRun bool

// ingestCmd represents the ingest command.
var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Import bank statements as shadow entries",
	Long: `Import bank statement CSV files as pending shadow entries.

The files need amount, date and description columns; a unique_identifier
column is used as the entry id when present. Entries already imported are
skipped.

Example:
  bookkeeper ingest statement.csv
  bookkeeper ingest --dry-run bank-a.csv bank-b.csv`,
	Args: cobra.MinimumNArgs(1),
	Run:  runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Dry run mode (no database writes)")
}

func runIngest(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	entries, err := ingest.NewCSVReader().ReadFiles(ctx, args)
	exitOnError(err, "failed to read bank statements")
	slog.Info("Read bank statements", "files", len(args), "entries", len(entries))

	if ingestDryRun {
		for _, e := range entries {
			fmt.Printf("  %s  %s  %12s  %s\n", e.ID, e.CreatedAt.Format("2006-01-02"), e.Amount.StringFixed(2), e.VendorKeyword)
		}
		fmt.Printf("\n[DRY RUN] %d entries would be imported\n", len(entries))
		return
	}

	a := openApp(ctx)
	defer a.Close()

	result, err := ingest.NewImporter(a.store, slog.Default()).Import(ctx, entries)
	exitOnError(err, "failed to import shadow entries")

	fmt.Printf("Imported: %d  Skipped (already imported): %d\n", result.Added, result.Skipped)
}
