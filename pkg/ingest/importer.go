package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/ledger"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// ShadowStore stores shadow entries.
type ShadowStore interface {
	GetShadowEntry(ctx context.Context, id string) (*models.ShadowEntry, error)
	AddShadowEntry(ctx context.Context, entry *models.ShadowEntry) error
}

// ImportResult summarises one import.
type ImportResult struct {
	Added   int
	Skipped int
}

// Importer writes shadow entries, skipping ids that are already stored so a
// statement can be imported more than once.
type Importer struct {
	store  ShadowStore
	logger *slog.Logger
}

// NewImporter creates an importer.
func NewImporter(store ShadowStore, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger}
}

// Import stores entries in order and stops at the first write error.
func (i *Importer) Import(ctx context.Context, entries []models.ShadowEntry) (ImportResult, error) {
	var result ImportResult
	for _, entry := range entries {
		_, err := i.store.GetShadowEntry(ctx, entry.ID)
		if err == nil {
			result.Skipped++
			i.logger.Debug("Shadow entry already imported", "shadow_id", entry.ID)
			continue
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return result, fmt.Errorf("failed to check shadow entry %s: %w", entry.ID, err)
		}

		entry := entry
		if err := i.store.AddShadowEntry(ctx, &entry); err != nil {
			return result, fmt.Errorf("failed to import shadow entry %s: %w", entry.ID, err)
		}
		result.Added++
	}

	i.logger.Info("Shadow entries imported", "added", result.Added, "skipped", result.Skipped)
	return result, nil
}
