package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProposals(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		count   int
		amount  string
		wantErr bool
	}{
		{
			name: "yaml list",
			input: `
- vendor: Acme Corp
  amount: "99.90"
  category: 6601-01
  confidence: 0.9
  tags:
    department: sales
- vendor: Globex
  amount: 12
  category: 6602-01
  confidence: 0.8
`,
			count:  2,
			amount: "99.90",
		},
		{
			name:   "json object",
			input:  `{"vendor": "Acme Corp", "amount": 1500.5, "category": "6601-01", "confidence": 0.95}`,
			count:  1,
			amount: "1500.5",
		},
		{name: "empty", input: "", count: 0},
		{name: "bad amount", input: `{"vendor": "Acme", "amount": "lots"}`, wantErr: true},
		{name: "malformed", input: "vendor: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := parseProposals([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, entries, tt.count)
			if tt.count > 0 {
				assert.True(t, decimal.RequireFromString(tt.amount).Equal(entries[0].Amount), "amount %s", entries[0].Amount)
				assert.Equal(t, "Acme Corp", entries[0].Vendor)
				assert.Equal(t, "6601-01", entries[0].Category)
			}
		})
	}
}

func TestParseProposalsKeepsTags(t *testing.T) {
	entries, err := parseProposals([]byte("vendor: Acme\namount: \"10\"\ncategory: 6601-01\ntags:\n  department: sales\n  invoice: none\n"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sales", entries[0].Tag("department"))
	assert.Equal(t, "none", entries[0].Tag("invoice"))
}

func TestReadProposalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proposals.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"vendor": "Acme Corp", "amount": "5", "category": "6601-01"}]`), 0o644))

	entries, err := readProposalFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = readProposalFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
