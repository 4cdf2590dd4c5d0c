package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SweepKind represents the type of periodic sweep.
type SweepKind string

const (
	SweepGroup  SweepKind = "group"
	SweepMatch  SweepKind = "match"
	SweepVerify SweepKind = "verify"
)

// SweepRecord represents one finished sweep run.
type SweepRecord struct {
	ID         int64
	Kind       SweepKind
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Matched    int
	Conflicts  int
	Detail     string
}

// SweepHistory manages sweep history and engine metadata.
type SweepHistory struct {
	conn *Connection
}

// NewSweepHistory creates a new SweepHistory instance.
func NewSweepHistory(conn *Connection) *SweepHistory {
	return &SweepHistory{conn: conn}
}

// RecordSweep records a finished sweep.
func (s *SweepHistory) RecordSweep(ctx context.Context, record SweepRecord) error {
	query := `
		INSERT INTO sweep_history (kind, started_at, finished_at, processed, matched, conflicts, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		string(record.Kind),
		record.StartedAt.UnixMilli(),
		record.FinishedAt.UnixMilli(),
		record.Processed,
		record.Matched,
		record.Conflicts,
		record.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record sweep: %w", err)
	}

	return nil
}

// LastSweep returns the most recent sweep of a kind, or nil if none ran yet.
func (s *SweepHistory) LastSweep(ctx context.Context, kind SweepKind) (*SweepRecord, error) {
	query := `
		SELECT id, kind, started_at, finished_at, processed, matched, conflicts, detail
		FROM sweep_history
		WHERE kind = ?
		ORDER BY id DESC
		LIMIT 1
	`

	var record SweepRecord
	var kindStr string
	var started, finished int64

	err := s.conn.QueryRowContext(ctx, query, string(kind)).Scan(
		&record.ID,
		&kindStr,
		&started,
		&finished,
		&record.Processed,
		&record.Matched,
		&record.Conflicts,
		&record.Detail,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sweep: %w", err)
	}

	record.Kind = SweepKind(kindStr)
	record.StartedAt = time.UnixMilli(started).UTC()
	record.FinishedAt = time.UnixMilli(finished).UTC()
	return &record, nil
}

// Stats represents ledger and sweep statistics.
type Stats struct {
	Vouchers        int
	PostedVouchers  int
	RevertedVoucher int
	PendingShadows  int
	MatchedShadows  int
	Vendors         int
	BlockedVendors  int
	Sweeps          int
}

// GetStats retrieves statistics about the ledger and sweeps.
func (s *SweepHistory) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats

	counts := []struct {
		query  string
		target *int
	}{
		{`SELECT COUNT(*) FROM vouchers`, &stats.Vouchers},
		{`SELECT COUNT(*) FROM vouchers WHERE status = 'POSTED' AND reverted = 0`, &stats.PostedVouchers},
		{`SELECT COUNT(*) FROM vouchers WHERE reverted = 1`, &stats.RevertedVoucher},
		{`SELECT COUNT(*) FROM shadow_entries WHERE status = 'PENDING'`, &stats.PendingShadows},
		{`SELECT COUNT(*) FROM shadow_entries WHERE status = 'MATCHED'`, &stats.MatchedShadows},
		{`SELECT COUNT(*) FROM vendor_trust`, &stats.Vendors},
		{`SELECT COUNT(*) FROM vendor_trust WHERE status = 'BLOCKED'`, &stats.BlockedVendors},
		{`SELECT COUNT(*) FROM sweep_history`, &stats.Sweeps},
	}

	for _, c := range counts {
		if err := s.conn.QueryRowContext(ctx, c.query).Scan(c.target); err != nil {
			return nil, fmt.Errorf("failed to get stats: %w", err)
		}
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value.
func (s *SweepHistory) GetMetadata(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM engine_metadata WHERE key = ?`

	var value string
	err := s.conn.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}

	return value, nil
}

// SetMetadata sets a metadata value.
func (s *SweepHistory) SetMetadata(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO engine_metadata (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := s.conn.ExecContext(ctx, query, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}

	return nil
}
