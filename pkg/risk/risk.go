// Package risk scores proposed entries. Every function is pure: it returns a
// partial risk contribution and the reasons behind it, and the audit engine
// combines them.
package risk

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/rules"
)

// Assessment is a partial or composite risk result.
type Assessment struct {
	Score   float64
	Reasons []string
	// HardBlock forces rejection regardless of Score.
	HardBlock bool
}

func (a *Assessment) add(score float64, format string, args ...any) {
	a.Score += score
	a.Reasons = append(a.Reasons, fmt.Sprintf(format, args...))
}

func (a *Assessment) block(format string, args ...any) {
	a.HardBlock = true
	a.Reasons = append(a.Reasons, fmt.Sprintf(format, args...))
}

// Combine sums the contributions, clips the score to [0,1] and keeps every
// reason. Any hard block carries over.
func Combine(parts ...Assessment) Assessment {
	var out Assessment
	for _, p := range parts {
		out.Score += p.Score
		out.Reasons = append(out.Reasons, p.Reasons...)
		out.HardBlock = out.HardBlock || p.HardBlock
	}
	out.Score = Clip(out.Score)
	return out
}

// Clip bounds v to [0,1].
func Clip(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// AssessCategoryFormat hard-blocks category codes not of the NNNN-NN form.
func AssessCategoryFormat(category string) Assessment {
	var a Assessment
	if !models.ValidCategory(category) {
		a.block("category %q is not of the form NNNN-NN", category)
	}
	return a
}

// AssessPriceBenchmark compares amount against the time-decay weighted mean
// of historical prices in the category. Each sample weighs 1/(1+days old).
// The tolerated deviation widens with the coefficient of variation of the
// history: threshold = base + factor*CV.
func AssessPriceBenchmark(category string, amount decimal.Decimal, samples []models.PriceSample, now time.Time, cfg rules.PriceBenchmarkRules) Assessment {
	var a Assessment
	if len(samples) < cfg.MinSamples || len(samples) == 0 {
		return a
	}

	var weighted, weights, sum float64
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		v := s.Amount.InexactFloat64()
		days := now.Sub(s.CreatedAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		w := 1 / (1 + days)
		weighted += w * v
		weights += w
		sum += v
		values = append(values, v)
	}
	if weights == 0 {
		return a
	}
	weightedMean := weighted / weights
	mean := sum / float64(len(values))
	if weightedMean <= 0 || mean <= 0 {
		return a
	}

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	cv := math.Sqrt(variance) / mean

	threshold := cfg.BaseThreshold + cfg.VolatilityFactor*cv
	deviation := math.Abs(amount.InexactFloat64()-weightedMean) / weightedMean
	if deviation <= threshold {
		return a
	}

	penalty := math.Min(cfg.MaxPenalty, cfg.PenaltyScale*(deviation-threshold))
	a.add(penalty, "amount %s deviates %.0f%% from the weighted %s mean %.2f (tolerance %.0f%%)",
		amount.StringFixed(2), deviation*100, category, weightedMean, threshold*100)
	return a
}

// AssessVendorRisk hard-blocks BLOCKED vendors and penalises HIGH_RISK
// vendors and categories that differ from the vendor's usual one.
func AssessVendorRisk(vendor, category string, trust models.VendorTrust, preferredCategory string, cfg rules.VendorRules) Assessment {
	var a Assessment
	if trust.Status == models.TrustBlocked {
		a.block("vendor %q is blocked after %d rejections", vendor, trust.RejectCount)
		return a
	}
	if trust.RiskLevel == models.RiskHigh {
		a.add(cfg.HighRiskPenalty, "vendor %q is marked high risk", vendor)
	}
	if preferredCategory != "" && preferredCategory != category {
		a.add(cfg.CategoryMismatchPenalty, "vendor %q is usually booked to %s, not %s", vendor, preferredCategory, category)
	}
	return a
}

// AssessAmountRisk adds a high, capped risk once amount reaches the manual
// review ceiling. The contribution alone exceeds the reject threshold.
func AssessAmountRisk(amount decimal.Decimal, cfg rules.AmountRules) Assessment {
	var a Assessment
	ceiling := cfg.Ceiling()
	if amount.GreaterThanOrEqual(ceiling) {
		a.add(Clip(cfg.Risk), "amount %s reaches the manual review amount threshold %s",
			amount.StringFixed(2), ceiling.StringFixed(2))
	}
	return a
}

// BudgetStatus is the department budget position of a proposal.
type BudgetStatus struct {
	Department string
	Configured bool
	Limit      decimal.Decimal
	Spent      decimal.Decimal
}

// Remaining returns the unspent budget.
func (b BudgetStatus) Remaining() decimal.Decimal {
	return b.Limit.Sub(b.Spent)
}

// Compliance is the outcome of the compliance check.
type Compliance struct {
	Passed    bool
	Reasons   []string
	RiskDelta float64
}

// Assessment converts the compliance outcome into a risk contribution.
// A failed check is a hard block.
func (c Compliance) Assessment() Assessment {
	return Assessment{
		Score:     c.RiskDelta,
		Reasons:   c.Reasons,
		HardBlock: !c.Passed,
	}
}

// PerformComplianceCheck cross-checks the vendor against the category with
// the relevance rules and the amount against the department budget.
func PerformComplianceCheck(entry models.ProposedEntry, relevance []rules.RelevanceRule, budget BudgetStatus) Compliance {
	c := Compliance{Passed: true}

	for _, rule := range relevance {
		if !rule.Matches(entry.Vendor, entry.Category) {
			continue
		}
		c.RiskDelta += rule.Risk
		if rule.Severity == rules.SeverityBlock {
			c.Passed = false
			c.Reasons = append(c.Reasons, fmt.Sprintf("vendor %q is not permitted for category %s (%s)", entry.Vendor, entry.Category, rule.Name))
		} else {
			c.Reasons = append(c.Reasons, fmt.Sprintf("vendor %q looks unrelated to category %s (%s)", entry.Vendor, entry.Category, rule.Name))
		}
	}

	if budget.Configured {
		remaining := budget.Remaining()
		if entry.Amount.GreaterThan(remaining) {
			c.Passed = false
			c.Reasons = append(c.Reasons, fmt.Sprintf("department %s budget exceeded: amount %s, remaining %s",
				budget.Department, entry.Amount.StringFixed(2), remaining.StringFixed(2)))
		}
	}

	return c
}

// Summary joins reasons into one human-readable line.
func Summary(reasons []string) string {
	return strings.Join(reasons, "; ")
}
