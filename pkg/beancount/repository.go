package beancount

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/pathutil"
)

// AccountsFile holds the open directives, next to the year directories.
const AccountsFile = "accounts.beancount"

// Repository defines the interface for Beancount file operations.
type Repository interface {
	// WriteMonthFile replaces a monthly file with the given transactions
	WriteMonthFile(yearMonth string, transactions []string) error

	// WriteAccountsFile replaces the accounts file
	WriteAccountsFile(directives string) error

	// ReadMonthFile reads the content of a monthly file
	ReadMonthFile(yearMonth string) (string, error)

	// MonthFileExists checks if a monthly file exists
	MonthFileExists(yearMonth string) bool

	// GetMonthFilesInYear gets all monthly files in a year
	GetMonthFilesInYear(year string) ([]string, error)
}

// FileSystemRepository is a file system implementation of Repository.
type FileSystemRepository struct {
	pathResolver *pathutil.PathResolver
	now          func() time.Time
}

// NewFileSystemRepository creates a new FileSystemRepository.
func NewFileSystemRepository(pathResolver *pathutil.PathResolver) *FileSystemRepository {
	return &FileSystemRepository{
		pathResolver: pathResolver,
		now:          time.Now,
	}
}

// WriteMonthFile writes a monthly file with header, replacing any previous
// export of the same month.
func (r *FileSystemRepository) WriteMonthFile(yearMonth string, transactions []string) error {
	filePath, err := r.pathResolver.GetMonthFilePath(yearMonth)
	if err != nil {
		return fmt.Errorf("failed to get month file path: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(r.generateFileHeader(yearMonth))
	for _, txn := range transactions {
		sb.WriteString(txn)
		if !strings.HasSuffix(txn, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n") // Add blank line after transaction
	}

	return r.replaceFile(filePath, sb.String())
}

// WriteAccountsFile writes the open directives of the chart of accounts.
func (r *FileSystemRepository) WriteAccountsFile(directives string) error {
	filePath := filepath.Join(r.pathResolver.GetJournalDir(), AccountsFile)
	header := fmt.Sprintf("; Chart of accounts\n; Generated at %s\n\n", r.now().Format(time.RFC3339))
	return r.replaceFile(filePath, header+directives)
}

// ReadMonthFile reads the content of a monthly file.
// Returns empty string if file doesn't exist.
func (r *FileSystemRepository) ReadMonthFile(yearMonth string) (string, error) {
	filePath, err := r.pathResolver.GetMonthFilePath(yearMonth)
	if err != nil {
		return "", fmt.Errorf("failed to get month file path: %w", err)
	}

	if !r.pathResolver.FileExists(filePath) {
		return "", nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return string(data), nil
}

// MonthFileExists checks if a monthly file exists.
func (r *FileSystemRepository) MonthFileExists(yearMonth string) bool {
	filePath, err := r.pathResolver.GetMonthFilePath(yearMonth)
	if err != nil {
		return false
	}

	return r.pathResolver.FileExists(filePath)
}

// GetMonthFilesInYear gets all monthly files in a year.
// Returns a sorted slice of year-month strings (e.g., ["2026-01", "2026-02"]).
func (r *FileSystemRepository) GetMonthFilesInYear(year string) ([]string, error) {
	yearDir := r.pathResolver.GetYearDir(year)
	if !r.pathResolver.FileExists(yearDir) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(yearDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read year directory: %w", err)
	}

	var monthFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".beancount" {
			monthFiles = append(monthFiles, strings.TrimSuffix(name, ".beancount"))
		}
	}
	sort.Strings(monthFiles)

	return monthFiles, nil
}

// replaceFile writes content to a temporary file and renames it over path.
func (r *FileSystemRepository) replaceFile(path, content string) error {
	if err := r.pathResolver.EnsureParentDir(path); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// generateFileHeader generates a header comment for a monthly file.
func (r *FileSystemRepository) generateFileHeader(yearMonth string) string {
	now := r.now().Format(time.RFC3339)
	return fmt.Sprintf("; Beancount file for %s\n; Generated at %s\n\n", yearMonth, now)
}
