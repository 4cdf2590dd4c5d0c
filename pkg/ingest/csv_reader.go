// Package ingest turns bank statement exports into shadow entries.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// Statement columns. Matching is case-insensitive.
const (
	ColumnID          = "unique_identifier"
	ColumnAmount      = "amount"
	ColumnDate        = "date"
	ColumnDescription = "description"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "2006/01/02"}

// CSVReader reads bank statement CSV files.
type CSVReader struct{}

// NewCSVReader creates a new reader.
func NewCSVReader() *CSVReader {
	return &CSVReader{}
}

// ReadFiles reads every file in order and returns their shadow entries.
func (r *CSVReader) ReadFiles(ctx context.Context, paths []string) ([]models.ShadowEntry, error) {
	var all []models.ShadowEntry
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := r.ReadFile(path)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// ReadFile reads one statement file.
func (r *CSVReader) ReadFile(path string) ([]models.ShadowEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bank statement file %s: %w", path, err)
	}
	defer file.Close()

	entries, err := r.Read(file, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Read parses a statement. Outflows are negative in the statement and
// become positive shadow amounts; the description is the vendor keyword.
// Rows without an identifier get one derived from source and line number.
func (r *CSVReader) Read(in io.Reader, source string) ([]models.ShadowEntry, error) {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var entries []models.ShadowEntry
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record at line %d: %w", line, err)
		}

		amount, err := decimal.NewFromString(strings.ReplaceAll(record[columns[ColumnAmount]], ",", ""))
		if err != nil {
			return nil, fmt.Errorf("could not parse amount '%s' at line %d: %w", record[columns[ColumnAmount]], line, err)
		}
		if amount.IsZero() {
			return nil, fmt.Errorf("zero amount at line %d", line)
		}

		at, err := parseDate(record[columns[ColumnDate]])
		if err != nil {
			return nil, fmt.Errorf("could not parse date '%s' at line %d: %w", record[columns[ColumnDate]], line, err)
		}

		keyword := strings.TrimSpace(record[columns[ColumnDescription]])
		if keyword == "" {
			return nil, fmt.Errorf("empty description at line %d", line)
		}

		id := ""
		if i, ok := columns[ColumnID]; ok {
			id = strings.TrimSpace(record[i])
		}
		if id == "" {
			id = fmt.Sprintf("%s:%d", source, line)
		}

		entries = append(entries, models.ShadowEntry{
			ID:            id,
			Amount:        amount.Abs(),
			VendorKeyword: keyword,
			CreatedAt:     at,
			Status:        models.ShadowPending,
		})
	}
	return entries, nil
}

func indexColumns(header []string) (map[string]int, error) {
	columns := map[string]int{}
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, required := range []string{ColumnAmount, ColumnDate, ColumnDescription} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	return columns, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
