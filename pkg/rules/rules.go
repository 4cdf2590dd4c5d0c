// Package rules provides the typed audit rule configuration loaded from YAML.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Severity of a relevance rule hit.
const (
	SeverityBlock = "block"
	SeverityWarn  = "warn"
)

// Rules is the complete audit rule set.
type Rules struct {
	// RejectThreshold is the composite risk score above which a proposal is rejected.
	RejectThreshold float64 `yaml:"reject_threshold"`
	// PayableAccount is credited when an approved proposal is booked.
	PayableAccount string              `yaml:"payable_account"`
	Amount         AmountRules         `yaml:"amount"`
	PriceBenchmark PriceBenchmarkRules `yaml:"price_benchmark"`
	Vendor         VendorRules         `yaml:"vendor"`
	Trust          TrustRules          `yaml:"trust"`
	Consensus      ConsensusRules      `yaml:"consensus"`
	Relevance      []RelevanceRule     `yaml:"relevance"`
	// Budgets maps a department to its spend budget per period.
	Budgets map[string]float64 `yaml:"budgets"`
	Chart   ChartOfAccounts    `yaml:"chart_of_accounts"`
}

// AmountRules configures the manual review ceiling.
type AmountRules struct {
	ManualReviewCeiling float64 `yaml:"manual_review_ceiling"`
	// Risk is added once the ceiling is reached. It must exceed the reject threshold.
	Risk float64 `yaml:"risk"`
}

// Ceiling returns the manual review ceiling as a decimal.
func (a AmountRules) Ceiling() decimal.Decimal {
	return decimal.NewFromFloat(a.ManualReviewCeiling)
}

// PriceBenchmarkRules configures the historical price comparison.
type PriceBenchmarkRules struct {
	LookbackDays     int     `yaml:"lookback_days"`
	MinSamples       int     `yaml:"min_samples"`
	MaxSamples       int     `yaml:"max_samples"`
	BaseThreshold    float64 `yaml:"base_threshold"`
	VolatilityFactor float64 `yaml:"volatility_factor"`
	PenaltyScale     float64 `yaml:"penalty_scale"`
	MaxPenalty       float64 `yaml:"max_penalty"`
}

// VendorRules configures vendor risk penalties.
type VendorRules struct {
	HighRiskPenalty         float64 `yaml:"high_risk_penalty"`
	CategoryMismatchPenalty float64 `yaml:"category_mismatch_penalty"`
}

// TrustRules configures vendor trust transitions.
type TrustRules struct {
	PromoteAfter int `yaml:"promote_after"`
	BlockAfter   int `yaml:"block_after"`
}

// ConsensusRules configures when the review panel convenes and how each
// persona votes.
type ConsensusRules struct {
	TriggerRatio     float64               `yaml:"trigger_ratio"`
	CeilingFraction  float64               `yaml:"ceiling_fraction"`
	Strategy         string                `yaml:"strategy"`
	Compliance       ComplianceRules       `yaml:"compliance"`
	FinancialControl FinancialControlRules `yaml:"financial_control"`
	Tax              TaxRules              `yaml:"tax"`
}

// ComplianceRules configures the compliance persona.
type ComplianceRules struct {
	LargeTransactionCeiling float64  `yaml:"large_transaction_ceiling"`
	SensitiveKeywords       []string `yaml:"sensitive_keywords"`
}

// FinancialControlRules configures the financial-control persona.
type FinancialControlRules struct {
	MidSizeAmount float64 `yaml:"mid_size_amount"`
	MinConfidence float64 `yaml:"min_confidence"`
	MaxRisk       float64 `yaml:"max_risk"`
}

// TaxRules configures the tax persona.
type TaxRules struct {
	DeductionLimitedCategories []string `yaml:"deduction_limited_categories"`
	InvoiceThreshold           float64  `yaml:"invoice_threshold"`
}

// RelevanceRule flags vendors whose name suggests spend that does not belong
// in the given categories.
type RelevanceRule struct {
	Name           string   `yaml:"name"`
	VendorKeywords []string `yaml:"vendor_keywords"`
	// DeniedCategories are matched as prefixes, so "6601" covers "6601-01".
	DeniedCategories []string `yaml:"denied_categories"`
	Severity         string   `yaml:"severity"`
	Risk             float64  `yaml:"risk"`
}

// Matches reports whether the rule fires for vendor and category.
func (r RelevanceRule) Matches(vendor, category string) bool {
	lowered := strings.ToLower(vendor)
	hit := false
	for _, keyword := range r.VendorKeywords {
		if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}
	for _, prefix := range r.DeniedCategories {
		if strings.HasPrefix(category, prefix) {
			return true
		}
	}
	return false
}

// Budget returns the budget of a department and whether one is configured.
func (r *Rules) Budget(department string) (decimal.Decimal, bool) {
	v, ok := r.Budgets[department]
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(v), true
}

// Defaults returns the rule set used when no file overrides a value.
func Defaults() *Rules {
	return &Rules{
		RejectThreshold: 0.15,
		PayableAccount:  "2202",
		Amount: AmountRules{
			ManualReviewCeiling: 100000,
			Risk:                0.6,
		},
		PriceBenchmark: PriceBenchmarkRules{
			LookbackDays:     180,
			MinSamples:       3,
			MaxSamples:       50,
			BaseThreshold:    0.15,
			VolatilityFactor: 0.5,
			PenaltyScale:     0.5,
			MaxPenalty:       0.3,
		},
		Vendor: VendorRules{
			HighRiskPenalty:         0.2,
			CategoryMismatchPenalty: 0.1,
		},
		Trust: TrustRules{
			PromoteAfter: 5,
			BlockAfter:   3,
		},
		Consensus: ConsensusRules{
			TriggerRatio:    0.1,
			CeilingFraction: 0.5,
			Strategy:        "BALANCED",
			Compliance: ComplianceRules{
				LargeTransactionCeiling: 50000,
			},
			FinancialControl: FinancialControlRules{
				MidSizeAmount: 10000,
				MinConfidence: 0.8,
				MaxRisk:       0.3,
			},
			Tax: TaxRules{
				InvoiceThreshold: 30000,
			},
		},
		Budgets: map[string]float64{},
		Chart:   DefaultChart(),
	}
}

// Load reads a YAML rule file on top of Defaults and validates the result.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML rules on top of Defaults and validates the result.
func Parse(data []byte) (*Rules, error) {
	r := Defaults()
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks value ranges and cross-field constraints.
func (r *Rules) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(r.RejectThreshold > 0 && r.RejectThreshold <= 1, "reject_threshold must be in (0,1], got %v", r.RejectThreshold)
	check(r.PayableAccount != "", "payable_account is required")
	check(r.Amount.ManualReviewCeiling > 0, "amount.manual_review_ceiling must be positive")
	check(r.Amount.Risk > r.RejectThreshold && r.Amount.Risk <= 1,
		"amount.risk must be in (reject_threshold,1], got %v", r.Amount.Risk)
	check(r.PriceBenchmark.MinSamples >= 2, "price_benchmark.min_samples must be at least 2")
	check(r.PriceBenchmark.MaxSamples >= r.PriceBenchmark.MinSamples, "price_benchmark.max_samples must not be below min_samples")
	check(r.PriceBenchmark.LookbackDays > 0, "price_benchmark.lookback_days must be positive")
	check(r.PriceBenchmark.MaxPenalty >= 0 && r.PriceBenchmark.MaxPenalty <= 1, "price_benchmark.max_penalty must be in [0,1]")
	check(r.Trust.PromoteAfter >= 1, "trust.promote_after must be at least 1")
	check(r.Trust.BlockAfter >= 1, "trust.block_after must be at least 1")
	check(r.Consensus.TriggerRatio >= 0 && r.Consensus.TriggerRatio <= 1, "consensus.trigger_ratio must be in [0,1]")
	check(r.Consensus.CeilingFraction > 0 && r.Consensus.CeilingFraction <= 1, "consensus.ceiling_fraction must be in (0,1]")
	check(r.Consensus.FinancialControl.MinConfidence >= 0 && r.Consensus.FinancialControl.MinConfidence <= 1,
		"consensus.financial_control.min_confidence must be in [0,1]")

	for i, rule := range r.Relevance {
		check(rule.Severity == SeverityBlock || rule.Severity == SeverityWarn,
			"relevance[%d] (%s): severity must be %q or %q", i, rule.Name, SeverityBlock, SeverityWarn)
		check(len(rule.VendorKeywords) > 0, "relevance[%d] (%s): vendor_keywords is required", i, rule.Name)
		check(len(rule.DeniedCategories) > 0, "relevance[%d] (%s): denied_categories is required", i, rule.Name)
	}
	for department, budget := range r.Budgets {
		check(budget >= 0, "budgets.%s must not be negative", department)
	}
	if err := r.Chart.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid rules: %w", errors.Join(errs...))
	}
	return nil
}
