// Package consensus simulates a fixed review panel voting on risky or large
// proposals.
package consensus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/rules"
)

// Strategy turns panel votes into one outcome.
type Strategy string

const (
	// Strict approves only when every persona passes.
	Strict Strategy = "STRICT"
	// Balanced approves when at least half of the personas pass.
	Balanced Strategy = "BALANCED"
	// Growth approves when any persona passes.
	Growth Strategy = "GROWTH"
)

// ParseStrategy parses a strategy name. An empty name is Balanced.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToUpper(strings.TrimSpace(s))) {
	case "", Balanced:
		return Balanced, nil
	case Strict:
		return Strict, nil
	case Growth:
		return Growth, nil
	default:
		return "", fmt.Errorf("unknown consensus strategy %q", s)
	}
}

// Persona names.
const (
	PersonaCompliance       = "compliance"
	PersonaFinancialControl = "financial-control"
	PersonaTax              = "tax"
)

// Vote is one persona's verdict.
type Vote struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// Votes maps persona name to its vote.
type Votes map[string]Vote

// PassCount returns the number of passing votes.
func (v Votes) PassCount() int {
	n := 0
	for _, vote := range v {
		if vote.Passed {
			n++
		}
	}
	return n
}

// Vetoes returns "persona: reason" for every failing vote, sorted by persona.
func (v Votes) Vetoes() []string {
	var out []string
	for name, vote := range v {
		if !vote.Passed {
			out = append(out, name+": "+vote.Reason)
		}
	}
	sort.Strings(out)
	return out
}

// Ballot is what the panel sees of a proposal.
type Ballot struct {
	Entry             models.ProposedEntry
	RiskScore         float64
	PreferredCategory string
	// CategoryName is the chart name of Entry.Category, empty when unknown.
	CategoryName string
}

// Persona is one simulated reviewer.
type Persona interface {
	Name() string
	Evaluate(b Ballot) Vote
}

// Engine holds the review panel.
type Engine struct {
	personas []Persona
	cfg      rules.ConsensusRules
}

// NewEngine builds the compliance, financial-control and tax panel.
func NewEngine(cfg rules.ConsensusRules) *Engine {
	return &Engine{
		cfg: cfg,
		personas: []Persona{
			compliancePersona{cfg: cfg.Compliance},
			financialControlPersona{cfg: cfg.FinancialControl},
			taxPersona{cfg: cfg.Tax},
		},
	}
}

// ShouldConvene reports whether a proposal needs the panel: the risk score
// exceeds the trigger ratio, or the amount exceeds the configured fraction of
// the manual review ceiling.
func (e *Engine) ShouldConvene(score float64, amount decimal.Decimal, amountRules rules.AmountRules) bool {
	if score > e.cfg.TriggerRatio {
		return true
	}
	limit := amountRules.Ceiling().Mul(decimal.NewFromFloat(e.cfg.CeilingFraction))
	return amount.GreaterThan(limit)
}

// Vote collects every persona's verdict.
func (e *Engine) Vote(b Ballot) Votes {
	votes := make(Votes, len(e.personas))
	for _, p := range e.personas {
		votes[p.Name()] = p.Evaluate(b)
	}
	return votes
}

// Decide applies strategy to votes. An empty panel never approves.
func Decide(votes Votes, strategy Strategy) bool {
	total := len(votes)
	if total == 0 {
		return false
	}
	passed := votes.PassCount()

	switch strategy {
	case Strict:
		return passed == total
	case Growth:
		return passed >= 1
	default:
		return float64(passed) >= float64(total)/2
	}
}

type compliancePersona struct {
	cfg rules.ComplianceRules
}

func (compliancePersona) Name() string { return PersonaCompliance }

func (p compliancePersona) Evaluate(b Ballot) Vote {
	ceiling := decimal.NewFromFloat(p.cfg.LargeTransactionCeiling)
	if p.cfg.LargeTransactionCeiling > 0 && b.Entry.Amount.GreaterThan(ceiling) && b.Entry.Tag(models.TagContract) == "" {
		return Vote{Reason: fmt.Sprintf("amount %s above %s without contract evidence",
			b.Entry.Amount.StringFixed(2), ceiling.StringFixed(2))}
	}

	fields := []struct{ label, value string }{
		{"vendor", b.Entry.Vendor},
		{"category", b.Entry.Category},
		{"category name", b.CategoryName},
	}
	for _, keyword := range p.cfg.SensitiveKeywords {
		if keyword == "" {
			continue
		}
		needle := strings.ToLower(keyword)
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f.value), needle) {
				return Vote{Reason: fmt.Sprintf("%s matches sensitive keyword %q", f.label, keyword)}
			}
		}
	}
	return Vote{Passed: true, Reason: "no compliance concerns"}
}

type financialControlPersona struct {
	cfg rules.FinancialControlRules
}

func (financialControlPersona) Name() string { return PersonaFinancialControl }

func (p financialControlPersona) Evaluate(b Ballot) Vote {
	midSize := decimal.NewFromFloat(p.cfg.MidSizeAmount)
	if !b.Entry.Amount.GreaterThan(midSize) {
		return Vote{Passed: true, Reason: "within routine spend"}
	}
	if b.Entry.Confidence < p.cfg.MinConfidence {
		return Vote{Reason: fmt.Sprintf("classification confidence %.2f below %.2f for spend above %s",
			b.Entry.Confidence, p.cfg.MinConfidence, midSize.StringFixed(2))}
	}
	if b.RiskScore > p.cfg.MaxRisk {
		return Vote{Reason: fmt.Sprintf("risk score %.2f above %.2f for spend above %s",
			b.RiskScore, p.cfg.MaxRisk, midSize.StringFixed(2))}
	}
	return Vote{Passed: true, Reason: "spend justified"}
}

type taxPersona struct {
	cfg rules.TaxRules
}

func (taxPersona) Name() string { return PersonaTax }

func (p taxPersona) Evaluate(b Ballot) Vote {
	if b.PreferredCategory != "" && b.PreferredCategory != b.Entry.Category {
		for _, limited := range p.cfg.DeductionLimitedCategories {
			if b.Entry.Category == limited {
				return Vote{Reason: fmt.Sprintf("category %s has limited deductibility and vendor is usually booked to %s",
					b.Entry.Category, b.PreferredCategory)}
			}
		}
	}

	threshold := decimal.NewFromFloat(p.cfg.InvoiceThreshold)
	if p.cfg.InvoiceThreshold > 0 && strings.EqualFold(b.Entry.Tag(models.TagInvoice), "none") && b.Entry.Amount.GreaterThan(threshold) {
		return Vote{Reason: fmt.Sprintf("no qualified invoice for amount above %s", threshold.StringFixed(2))}
	}
	return Vote{Passed: true, Reason: "no tax concerns"}
}
