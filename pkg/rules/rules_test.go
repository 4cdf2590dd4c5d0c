package rules

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestDefaultsCarryChartOfAccounts(t *testing.T) {
	r := Defaults()
	accounts := r.Chart.Accounts()
	require.Len(t, accounts, 11)

	codes := make(map[string]string)
	for _, a := range accounts {
		codes[a.Code] = a.Type
	}
	assert.Equal(t, AccountExpense, codes["6601-01"])
	assert.Equal(t, AccountLiability, codes[r.PayableAccount])
	assert.Equal(t, "Entertainment", r.Chart.Name("6602-01"))
	assert.Empty(t, r.Chart.Name("9999-99"))

	sample, err := Load(filepath.Join("..", "..", "config", "audit-rules.yaml"))
	require.NoError(t, err)
	assert.Equal(t, sample.Chart, r.Chart)
}

func TestParseReplacesChartSection(t *testing.T) {
	r, err := Parse([]byte("chart_of_accounts:\n  expenses:\n    - code: \"7001\"\n      name: Research\n"))
	require.NoError(t, err)

	assert.Equal(t, []ChartEntry{{Code: "7001", Name: "Research"}}, r.Chart.Expenses)
	assert.Equal(t, DefaultChart().Assets, r.Chart.Assets)
}

func TestLoadSampleRules(t *testing.T) {
	r, err := Load(filepath.Join("..", "..", "config", "audit-rules.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 0.15, r.RejectThreshold)
	assert.Equal(t, "2202", r.PayableAccount)
	assert.Equal(t, "BALANCED", r.Consensus.Strategy)
	assert.Contains(t, r.Consensus.Tax.DeductionLimitedCategories, "6602-01")

	budget, ok := r.Budget("sales")
	require.True(t, ok)
	assert.Equal(t, "500000", budget.String())
	_, ok = r.Budget("unknown")
	assert.False(t, ok)

	accounts := r.Chart.Accounts()
	require.NotEmpty(t, accounts)
	assert.Equal(t, "1001-01", accounts[0].Code)
	assert.Equal(t, AccountAsset, accounts[0].Type)
}

func TestParseKeepsDefaultsForMissingFields(t *testing.T) {
	r, err := Parse([]byte("reject_threshold: 0.2\n"))
	require.NoError(t, err)

	assert.Equal(t, 0.2, r.RejectThreshold)
	assert.Equal(t, 100000.0, r.Amount.ManualReviewCeiling)
	assert.Equal(t, 5, r.Trust.PromoteAfter)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "threshold out of range",
			yaml:    "reject_threshold: 1.5\n",
			wantErr: "reject_threshold",
		},
		{
			name:    "amount risk below threshold",
			yaml:    "amount:\n  manual_review_ceiling: 1000\n  risk: 0.1\n",
			wantErr: "amount.risk",
		},
		{
			name:    "bad severity",
			yaml:    "relevance:\n  - name: x\n    vendor_keywords: [a]\n    denied_categories: [\"6\"]\n    severity: maybe\n",
			wantErr: "severity",
		},
		{
			name:    "duplicate account",
			yaml:    "chart_of_accounts:\n  assets:\n    - code: \"1\"\n      name: a\n  equity:\n    - code: \"1\"\n      name: b\n",
			wantErr: "duplicate code",
		},
		{
			name:    "malformed yaml",
			yaml:    "reject_threshold: [",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRelevanceRuleMatches(t *testing.T) {
	rule := RelevanceRule{
		VendorKeywords:   []string{"Restaurant", "cafe"},
		DeniedCategories: []string{"6601"},
	}

	assert.True(t, rule.Matches("Blue Bottle CAFE", "6601-01"))
	assert.True(t, rule.Matches("Golden restaurant", "6601-02"))
	assert.False(t, rule.Matches("Golden restaurant", "6602-01"))
	assert.False(t, rule.Matches("Office Depot", "6601-01"))
}

func TestHolderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reject_threshold: 0.2\n"), 0644))

	h, err := NewHolder(path, nil)
	require.NoError(t, err)
	before := h.Current()
	assert.Equal(t, 0.2, before.RejectThreshold)

	require.NoError(t, os.WriteFile(path, []byte("reject_threshold: 0.3\n"), 0644))
	require.NoError(t, h.Reload())
	assert.Equal(t, 0.3, h.Current().RejectThreshold)
	assert.Equal(t, 0.2, before.RejectThreshold)

	require.NoError(t, os.WriteFile(path, []byte("reject_threshold: 7\n"), 0644))
	assert.Error(t, h.Reload())
	assert.Equal(t, 0.3, h.Current().RejectThreshold)
}

func TestHolderWatchReloadsOnSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reject_threshold: 0.2\n"), 0644))

	h, err := NewHolder(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	reloaded := make(chan *Rules, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Watch(ctx, signals, func(r *Rules) { reloaded <- r })
	}()

	require.NoError(t, os.WriteFile(path, []byte("reject_threshold: 0.3\n"), 0644))
	signals <- syscall.SIGHUP

	select {
	case r := <-reloaded:
		assert.Equal(t, 0.3, r.RejectThreshold)
	case <-time.After(5 * time.Second):
		t.Fatal("rules were not reloaded")
	}
	assert.Equal(t, 0.3, h.Current().RejectThreshold)

	// A broken file keeps the active rules and skips the callback.
	require.NoError(t, os.WriteFile(path, []byte("reject_threshold: [\n"), 0644))
	signals <- syscall.SIGHUP
	cancel()
	<-done

	assert.Empty(t, reloaded)
	assert.Equal(t, 0.3, h.Current().RejectThreshold)
}
