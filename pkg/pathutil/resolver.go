// Package pathutil provides centralized path management for the ledger
// database, the rules file and the incident log.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default file names under the data root.
const (
	DatabaseFile    = "ledger.db"
	RulesFile       = "audit-rules.yaml"
	IncidentLogFile = "incidents.jsonl"
	JournalDir      = "journal"
)

// PathResolver manages the engine's file paths.
type PathResolver struct {
	dataRoot        string
	databasePath    string
	rulesPath       string
	incidentLogPath string
	journalDir      string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// DataRoot is the directory holding the engine's files (e.g., ~/bookkeeping)
	DataRoot string
	// DatabasePath is the path to the SQLite ledger
	DatabasePath string
	// RulesPath is the path to the audit rules YAML file
	RulesPath string
	// IncidentLogPath is the path to the JSONL operator channel
	IncidentLogPath string
	// JournalDir is the root of the exported Beancount journal
	JournalDir string
}

// New creates a new PathResolver with the given configuration.
// If DatabasePath is empty, it defaults to {DataRoot}/ledger.db
// If IncidentLogPath is empty, it defaults to {DataRoot}/incidents.jsonl
// If JournalDir is empty, it defaults to {DataRoot}/journal
// RulesPath is kept as given; see GetRulesPath.
func New(config Config) *PathResolver {
	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.DataRoot, DatabaseFile)
	}

	incidentLogPath := config.IncidentLogPath
	if incidentLogPath == "" {
		incidentLogPath = filepath.Join(config.DataRoot, IncidentLogFile)
	}

	journalDir := config.JournalDir
	if journalDir == "" {
		journalDir = filepath.Join(config.DataRoot, JournalDir)
	}

	return &PathResolver{
		dataRoot:        config.DataRoot,
		databasePath:    dbPath,
		rulesPath:       config.RulesPath,
		incidentLogPath: incidentLogPath,
		journalDir:      journalDir,
	}
}

// GetDataRoot returns the data root directory.
func (p *PathResolver) GetDataRoot() string {
	return p.dataRoot
}

// GetDatabasePath returns the database file path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetRulesPath returns the configured rules file, or {DataRoot}/audit-rules.yaml
// when that file exists. An empty result means the built-in defaults apply.
func (p *PathResolver) GetRulesPath() string {
	if p.rulesPath != "" {
		return p.rulesPath
	}
	candidate := filepath.Join(p.dataRoot, RulesFile)
	if p.FileExists(candidate) {
		return candidate
	}
	return ""
}

// GetIncidentLogPath returns the incident log path.
func (p *PathResolver) GetIncidentLogPath() string {
	return p.incidentLogPath
}

// GetJournalDir returns the Beancount journal root directory.
func (p *PathResolver) GetJournalDir() string {
	return p.journalDir
}

// GetYearDir returns the journal directory path for a year.
// Example: ~/bookkeeping/journal/2026
func (p *PathResolver) GetYearDir(year string) string {
	return filepath.Join(p.journalDir, year)
}

// GetMonthFilePath returns the journal file path for a month.
// yearMonth should be in YYYY-MM format.
// Example: ~/bookkeeping/journal/2026/2026-03.beancount
func (p *PathResolver) GetMonthFilePath(yearMonth string) (string, error) {
	parts := strings.Split(yearMonth, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return "", fmt.Errorf("invalid year-month format: %s. Expected YYYY-MM", yearMonth)
	}

	year := parts[0]
	yearDir := p.GetYearDir(year)
	filename := fmt.Sprintf("%s.beancount", yearMonth)

	return filepath.Join(yearDir, filename), nil
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return p.EnsureDir(dir)
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// IsDir checks if a path is a directory.
func (p *PathResolver) IsDir(dirPath string) bool {
	info, err := os.Stat(dirPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}
