// Package cmd provides CLI commands for bookkeeper.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "bookkeeper",
	Short: "Audit proposed entries and keep the ledger consistent",
	Long: `bookkeeper decides whether classified spend items may enter a
double-entry ledger and keeps that ledger consistent.

It supports:
- Auditing proposed entries (risk scoring, review panel, vendor trust)
- Posting and reverting vouchers
- Importing bank statements as shadow entries
- Reconciling shadow entries against draft vouchers
- Verifying the voucher hash chain and the trial balance
- Exporting posted vouchers as a Beancount journal

Example:
  bookkeeper audit proposals.yaml
  bookkeeper ingest statement.csv
  bookkeeper reconcile --watch
  bookkeeper verify
  bookkeeper export --period 2026-03`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(debug)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(trustCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
}

func setupLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// Helper function to get config file path.
func getConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "" // Will use default .env loading
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
