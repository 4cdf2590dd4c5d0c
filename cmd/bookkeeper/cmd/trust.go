package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

var trustRiskLevel string

// trustCmd represents the trust command.
var trustCmd = &cobra.Command{
	Use:   "trust [VENDOR]",
	Short: "Show or mark vendor trust",
	Long: `Show the trust state of every vendor, or of one vendor.
With --risk-level the vendor is marked NORMAL or HIGH_RISK.

Example:
  bookkeeper trust
  bookkeeper trust "Acme Corp" --risk-level HIGH_RISK`,
	Args: cobra.MaximumNArgs(1),
	Run:  runTrust,
}

func init() {
	trustCmd.Flags().StringVar(&trustRiskLevel, "risk-level", "", "Set vendor risk level (NORMAL, HIGH_RISK)")
}

func runTrust(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := openApp(ctx)
	defer a.Close()

	if trustRiskLevel != "" {
		if len(args) != 1 {
			exitOnError(fmt.Errorf("--risk-level needs a vendor"), "invalid arguments")
		}
		level := models.RiskLevel(strings.ToUpper(trustRiskLevel))
		if level != models.RiskNormal && level != models.RiskHigh {
			exitOnError(fmt.Errorf("unknown risk level %q", trustRiskLevel), "invalid arguments")
		}
		exitOnError(a.store.SetRiskLevel(ctx, args[0], level), "failed to set risk level")
	}

	var vendors []models.VendorTrust
	if len(args) == 1 {
		t, err := a.store.Trust(ctx, args[0])
		exitOnError(err, "failed to load vendor trust")
		vendors = append(vendors, t)
	} else {
		all, err := a.store.ListTrust(ctx)
		exitOnError(err, "failed to list vendor trust")
		vendors = all
	}

	fmt.Printf("\n%-30s %-8s %-10s %8s %8s\n", "vendor", "status", "risk", "streak", "rejects")
	for _, t := range vendors {
		line := fmt.Sprintf("%-30s %-8s %-10s %8d %8d", t.Vendor, t.Status, t.RiskLevel, t.ConsecutiveSuccess, t.RejectCount)
		switch t.Status {
		case models.TrustBlocked:
			color.Red("%s", line)
		case models.TrustStable:
			color.Green("%s", line)
		default:
			fmt.Println(line)
		}
	}
	fmt.Println()
}
