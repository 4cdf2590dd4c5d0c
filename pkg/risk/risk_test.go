package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/rules"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func samples(amounts ...string) []models.PriceSample {
	out := make([]models.PriceSample, len(amounts))
	for i, a := range amounts {
		out[i] = models.PriceSample{
			Amount:    decimal.RequireFromString(a),
			Vendor:    "Acme",
			CreatedAt: now.Add(-time.Duration(i+1) * 24 * time.Hour),
		}
	}
	return out
}

func TestAssessCategoryFormat(t *testing.T) {
	tests := []struct {
		category string
		block    bool
	}{
		{"6601-01", false},
		{"6601-1", true},
		{"660101", true},
		{"", true},
		{"66a1-01", true},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			a := AssessCategoryFormat(tt.category)
			assert.Equal(t, tt.block, a.HardBlock)
			assert.Zero(t, a.Score)
		})
	}
}

func TestAssessPriceBenchmark(t *testing.T) {
	cfg := rules.Defaults().PriceBenchmark

	tests := []struct {
		name    string
		amount  string
		history []models.PriceSample
		flagged bool
	}{
		{"too few samples", "1000", samples("100", "100"), false},
		{"within tolerance", "110", samples("100", "100", "100", "100"), false},
		{"far above stable history", "300", samples("100", "100", "100", "100"), true},
		{"volatile history widens tolerance", "120", samples("50", "150", "60", "140"), false},
		{"same jump on stable history", "120", samples("100", "100", "100", "100"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AssessPriceBenchmark("6601-01", decimal.RequireFromString(tt.amount), tt.history, now, cfg)
			assert.Equal(t, tt.flagged, a.Score > 0, "score %v reasons %v", a.Score, a.Reasons)
			assert.LessOrEqual(t, a.Score, cfg.MaxPenalty)
			assert.False(t, a.HardBlock)
		})
	}
}

func TestAssessVendorRisk(t *testing.T) {
	cfg := rules.Defaults().Vendor

	blocked := models.NewVendorTrust("Acme")
	blocked.Status = models.TrustBlocked
	a := AssessVendorRisk("Acme", "6601-01", blocked, "", cfg)
	assert.True(t, a.HardBlock)

	high := models.NewVendorTrust("Acme")
	high.RiskLevel = models.RiskHigh
	a = AssessVendorRisk("Acme", "6601-01", high, "6602-01", cfg)
	assert.False(t, a.HardBlock)
	assert.InDelta(t, cfg.HighRiskPenalty+cfg.CategoryMismatchPenalty, a.Score, 1e-9)
	assert.Len(t, a.Reasons, 2)

	clean := AssessVendorRisk("Acme", "6601-01", models.NewVendorTrust("Acme"), "6601-01", cfg)
	assert.Zero(t, clean.Score)
	assert.Empty(t, clean.Reasons)
}

func TestAssessAmountRisk(t *testing.T) {
	cfg := rules.Defaults().Amount

	below := AssessAmountRisk(decimal.RequireFromString("99999.99"), cfg)
	assert.Zero(t, below.Score)

	at := AssessAmountRisk(decimal.NewFromInt(100000), cfg)
	assert.Equal(t, cfg.Risk, at.Score)
	require.Len(t, at.Reasons, 1)
	assert.Contains(t, at.Reasons[0], "amount threshold")
}

func TestPerformComplianceCheck(t *testing.T) {
	relevance := []rules.RelevanceRule{
		{Name: "dining", VendorKeywords: []string{"restaurant"}, DeniedCategories: []string{"6601"}, Severity: rules.SeverityWarn, Risk: 0.2},
		{Name: "gambling", VendorKeywords: []string{"casino"}, DeniedCategories: []string{"6"}, Severity: rules.SeverityBlock, Risk: 0.5},
	}
	entry := func(vendor, category, amount string) models.ProposedEntry {
		return models.ProposedEntry{Vendor: vendor, Category: category, Amount: decimal.RequireFromString(amount)}
	}

	t.Run("clean", func(t *testing.T) {
		c := PerformComplianceCheck(entry("Office Depot", "6601-01", "50"), relevance, BudgetStatus{})
		assert.True(t, c.Passed)
		assert.Zero(t, c.RiskDelta)
	})

	t.Run("warn adds risk", func(t *testing.T) {
		c := PerformComplianceCheck(entry("Sakura Restaurant", "6601-01", "50"), relevance, BudgetStatus{})
		assert.True(t, c.Passed)
		assert.InDelta(t, 0.2, c.RiskDelta, 1e-9)
		assert.Len(t, c.Reasons, 1)
	})

	t.Run("block fails", func(t *testing.T) {
		c := PerformComplianceCheck(entry("Lucky Casino", "6602-01", "50"), relevance, BudgetStatus{})
		assert.False(t, c.Passed)
		assert.True(t, c.Assessment().HardBlock)
	})

	t.Run("budget exceeded", func(t *testing.T) {
		budget := BudgetStatus{
			Department: "sales",
			Configured: true,
			Limit:      decimal.NewFromInt(1000),
			Spent:      decimal.NewFromInt(960),
		}
		c := PerformComplianceCheck(entry("Office Depot", "6601-01", "50"), relevance, budget)
		assert.False(t, c.Passed)
		assert.Contains(t, c.Reasons[0], "budget exceeded")

		c = PerformComplianceCheck(entry("Office Depot", "6601-01", "40"), relevance, budget)
		assert.True(t, c.Passed)
	})
}

func TestCombine(t *testing.T) {
	c := Combine(
		Assessment{Score: 0.6, Reasons: []string{"a"}},
		Assessment{Score: 0.7, Reasons: []string{"b"}},
		Assessment{},
	)
	assert.Equal(t, 1.0, c.Score)
	assert.Equal(t, []string{"a", "b"}, c.Reasons)
	assert.False(t, c.HardBlock)

	c = Combine(Assessment{Score: -0.2}, Assessment{HardBlock: true, Reasons: []string{"blocked"}})
	assert.Zero(t, c.Score)
	assert.True(t, c.HardBlock)
}
