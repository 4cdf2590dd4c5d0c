package consensus

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/rules"
)

func TestDecideExhaustive(t *testing.T) {
	personas := []string{PersonaCompliance, PersonaFinancialControl, PersonaTax}

	for mask := 0; mask < 8; mask++ {
		votes := Votes{}
		passCount := 0
		for i, name := range personas {
			passed := mask&(1<<i) != 0
			if passed {
				passCount++
			}
			votes[name] = Vote{Passed: passed}
		}

		t.Run(fmt.Sprintf("mask=%03b", mask), func(t *testing.T) {
			assert.Equal(t, passCount == 3, Decide(votes, Strict), "STRICT")
			assert.Equal(t, passCount >= 2, Decide(votes, Balanced), "BALANCED")
			assert.Equal(t, passCount >= 1, Decide(votes, Growth), "GROWTH")
		})
	}
}

func TestDecideEmptyPanel(t *testing.T) {
	for _, s := range []Strategy{Strict, Balanced, Growth} {
		assert.False(t, Decide(Votes{}, s), string(s))
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", Balanced, false},
		{"strict", Strict, false},
		{" GROWTH ", Growth, false},
		{"BALANCED", Balanced, false},
		{"YOLO", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldConvene(t *testing.T) {
	r := rules.Defaults()
	e := NewEngine(r.Consensus)

	assert.False(t, e.ShouldConvene(0.05, decimal.NewFromInt(50), r.Amount))
	assert.True(t, e.ShouldConvene(0.11, decimal.NewFromInt(50), r.Amount))
	assert.True(t, e.ShouldConvene(0, decimal.NewFromInt(50001), r.Amount))
	assert.False(t, e.ShouldConvene(0, decimal.NewFromInt(50000), r.Amount))
}

func TestPersonaVotes(t *testing.T) {
	cfg := rules.Defaults().Consensus
	cfg.Compliance.SensitiveKeywords = []string{"casino", "Entertainment", "donation"}
	cfg.Tax.DeductionLimitedCategories = []string{"6602-01"}
	e := NewEngine(cfg)

	ballot := func(vendor, category, amount string, confidence float64, tags map[string]string) Ballot {
		return Ballot{Entry: models.ProposedEntry{
			Vendor:     vendor,
			Category:   category,
			Amount:     decimal.RequireFromString(amount),
			Confidence: confidence,
			Tags:       tags,
		}}
	}

	t.Run("routine spend passes everyone", func(t *testing.T) {
		votes := e.Vote(ballot("Office Depot", "6601-01", "500", 0.9, nil))
		assert.Equal(t, 3, votes.PassCount())
		assert.Empty(t, votes.Vetoes())
	})

	t.Run("large without contract", func(t *testing.T) {
		votes := e.Vote(ballot("Office Depot", "6601-01", "60000", 0.95, nil))
		assert.False(t, votes[PersonaCompliance].Passed)

		votes = e.Vote(ballot("Office Depot", "6601-01", "60000", 0.95, map[string]string{models.TagContract: "C-1"}))
		assert.True(t, votes[PersonaCompliance].Passed)
	})

	t.Run("sensitive vendor", func(t *testing.T) {
		votes := e.Vote(ballot("Grand Casino", "6602-01", "100", 0.9, nil))
		assert.False(t, votes[PersonaCompliance].Passed)
	})

	t.Run("sensitive category", func(t *testing.T) {
		tests := []struct {
			name         string
			category     string
			categoryName string
			wantReason   string
		}{
			{"chart name", "6602-01", "Entertainment", "category name"},
			{"name case folded", "6602-01", "client ENTERTAINMENT", "category name"},
			{"category label", "donation-99", "", "category"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				b := ballot("Hotel Okura", tt.category, "100", 0.9, nil)
				b.CategoryName = tt.categoryName
				vote := e.Vote(b)[PersonaCompliance]
				assert.False(t, vote.Passed)
				assert.Contains(t, vote.Reason, tt.wantReason)
			})
		}

		b := ballot("Hotel Okura", "6603-01", "100", 0.9, nil)
		b.CategoryName = "Travel"
		assert.True(t, e.Vote(b)[PersonaCompliance].Passed)
	})

	t.Run("financial control needs confidence", func(t *testing.T) {
		votes := e.Vote(ballot("Office Depot", "6601-01", "20000", 0.5, nil))
		assert.False(t, votes[PersonaFinancialControl].Passed)

		b := ballot("Office Depot", "6601-01", "20000", 0.9, nil)
		b.RiskScore = 0.5
		votes = e.Vote(b)
		assert.False(t, votes[PersonaFinancialControl].Passed)
	})

	t.Run("tax mismatch on limited category", func(t *testing.T) {
		b := ballot("Office Depot", "6602-01", "100", 0.9, nil)
		b.PreferredCategory = "6601-01"
		votes := e.Vote(b)
		assert.False(t, votes[PersonaTax].Passed)
		require.Len(t, votes.Vetoes(), 1)
	})

	t.Run("missing invoice", func(t *testing.T) {
		votes := e.Vote(ballot("Office Depot", "6601-01", "40000", 0.9, map[string]string{models.TagInvoice: "none"}))
		assert.False(t, votes[PersonaTax].Passed)
	})
}
