package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	root := t.TempDir()
	p := New(Config{DataRoot: root})

	assert.Equal(t, root, p.GetDataRoot())
	assert.Equal(t, filepath.Join(root, "ledger.db"), p.GetDatabasePath())
	assert.Equal(t, filepath.Join(root, "incidents.jsonl"), p.GetIncidentLogPath())
	assert.Empty(t, p.GetRulesPath())
	assert.Equal(t, filepath.Join(root, "journal"), p.GetJournalDir())

	rules := filepath.Join(root, RulesFile)
	require.NoError(t, os.WriteFile(rules, []byte("reject_threshold: 0.2\n"), 0o644))
	assert.Equal(t, rules, p.GetRulesPath())
}

func TestNewExplicitPaths(t *testing.T) {
	p := New(Config{
		DataRoot:        "/data",
		DatabasePath:    "/var/lib/ledger.db",
		RulesPath:       "/etc/audit-rules.yaml",
		IncidentLogPath: "/var/log/incidents.jsonl",
	})

	assert.Equal(t, "/var/lib/ledger.db", p.GetDatabasePath())
	assert.Equal(t, "/etc/audit-rules.yaml", p.GetRulesPath())
	assert.Equal(t, "/var/log/incidents.jsonl", p.GetIncidentLogPath())
}

func TestEnsureParentDir(t *testing.T) {
	root := t.TempDir()
	p := New(Config{DataRoot: root})

	file := filepath.Join(root, "nested", "deeper", "ledger.db")
	require.NoError(t, p.EnsureParentDir(file))
	assert.True(t, p.IsDir(filepath.Dir(file)))
	assert.False(t, p.FileExists(file))
}

func TestGetMonthFilePath(t *testing.T) {
	p := New(Config{DataRoot: "/data", JournalDir: "/books"})

	tests := []struct {
		yearMonth string
		expected  string
		wantErr   bool
	}{
		{yearMonth: "2026-03", expected: "/books/2026/2026-03.beancount"},
		{yearMonth: "2026-12", expected: "/books/2026/2026-12.beancount"},
		{yearMonth: "2026-3", wantErr: true},
		{yearMonth: "202603", wantErr: true},
		{yearMonth: "26-03", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.yearMonth, func(t *testing.T) {
			got, err := p.GetMonthFilePath(tt.yearMonth)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
