package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// AddShadowEntry stores an externally observed cash movement as PENDING.
func (s *Store) AddShadowEntry(ctx context.Context, entry *models.ShadowEntry) error {
	if entry.Amount.IsZero() || entry.Amount.IsNegative() {
		return &ValidationError{Reason: fmt.Sprintf("shadow entry amount must be positive, got %s", entry.Amount)}
	}
	if entry.VendorKeyword == "" {
		return &ValidationError{Reason: "shadow entry has no vendor keyword"}
	}

	prepared := *entry
	if prepared.ID == "" {
		prepared.ID = uuid.NewString()
	}
	if prepared.CreatedAt.IsZero() {
		prepared.CreatedAt = s.now()
	}
	prepared.CreatedAt = prepared.CreatedAt.UTC().Truncate(time.Millisecond)
	prepared.Status = models.ShadowPending
	prepared.MatchedVoucherID = ""

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO shadow_entries (id, amount, vendor_keyword, created_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, prepared.ID, prepared.Amount.String(), prepared.VendorKeyword, prepared.CreatedAt.UnixMilli(), string(prepared.Status))
	if err != nil {
		return fmt.Errorf("failed to insert shadow entry: %w", err)
	}

	*entry = prepared
	return nil
}

// GetShadowEntry loads one shadow entry.
func (s *Store) GetShadowEntry(ctx context.Context, id string) (*models.ShadowEntry, error) {
	entry, err := scanShadow(s.conn.QueryRowContext(ctx,
		`SELECT id, amount, vendor_keyword, created_at, status, matched_voucher_id FROM shadow_entries WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shadow entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shadow entry: %w", err)
	}
	return &entry, nil
}

// PendingShadowEntries returns every PENDING shadow entry, oldest first.
func (s *Store) PendingShadowEntries(ctx context.Context) ([]models.ShadowEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, amount, vendor_keyword, created_at, status, matched_voucher_id
		FROM shadow_entries
		WHERE status = 'PENDING'
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query shadow entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ShadowEntry
	for rows.Next() {
		entry, err := scanShadow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shadow entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanShadow(row rowScanner) (models.ShadowEntry, error) {
	var entry models.ShadowEntry
	var amount, status string
	var createdAt int64
	if err := row.Scan(&entry.ID, &amount, &entry.VendorKeyword, &createdAt, &status, &entry.MatchedVoucherID); err != nil {
		return entry, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return entry, fmt.Errorf("shadow entry %s has malformed amount %q: %w", entry.ID, amount, err)
	}
	entry.Amount = parsed
	entry.Status = models.ShadowStatus(status)
	entry.CreatedAt = time.UnixMilli(createdAt).UTC()
	return entry, nil
}

// UnmatchedDrafts returns DRAFT, UNMATCHED, non-reverted vouchers ordered by
// creation time. Lines are not loaded.
func (s *Store) UnmatchedDrafts(ctx context.Context) ([]models.Voucher, error) {
	return s.queryVouchers(ctx, `
		SELECT `+voucherColumns+` FROM vouchers v
		WHERE v.status = 'DRAFT' AND v.match_status = 'UNMATCHED' AND v.reverted = 0
		ORDER BY v.created_at, v.id
	`)
}

// Candidates returns the unmatched draft vouchers that may settle entry:
// created within window of the entry, with an amount (or correlation group
// total) within tolerance of the entry amount.
func (s *Store) Candidates(ctx context.Context, entry models.ShadowEntry, tolerance decimal.Decimal, window time.Duration) ([]models.Voucher, error) {
	from := entry.CreatedAt.Add(-window).UnixMilli()
	to := entry.CreatedAt.Add(window).UnixMilli()

	drafts, err := s.queryVouchers(ctx, `
		SELECT `+voucherColumns+` FROM vouchers v
		WHERE v.status = 'DRAFT' AND v.match_status = 'UNMATCHED' AND v.reverted = 0
			AND v.created_at BETWEEN ? AND ?
		ORDER BY v.created_at, v.id
	`, from, to)
	if err != nil {
		return nil, err
	}

	groupTotals, err := s.groupTotals(ctx, drafts)
	if err != nil {
		return nil, err
	}

	var candidates []models.Voucher
	for _, v := range drafts {
		if withinTolerance(v.Amount, entry.Amount, tolerance) {
			candidates = append(candidates, v)
			continue
		}
		if total, ok := groupTotals[v.GroupID]; ok && withinTolerance(total, entry.Amount, tolerance) {
			candidates = append(candidates, v)
		}
	}
	return candidates, nil
}

func withinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

func (s *Store) groupTotals(ctx context.Context, drafts []models.Voucher) (map[string]decimal.Decimal, error) {
	totals := map[string]decimal.Decimal{}
	for _, v := range drafts {
		if v.GroupID == "" {
			continue
		}
		if _, done := totals[v.GroupID]; done {
			continue
		}
		members, err := s.queryVouchers(ctx, `
			SELECT `+voucherColumns+` FROM vouchers v
			WHERE v.group_id = ? AND v.reverted = 0
		`, v.GroupID)
		if err != nil {
			return nil, err
		}
		total := decimal.Zero
		for _, m := range members {
			total = total.Add(m.Amount)
		}
		totals[v.GroupID] = total
	}
	return totals, nil
}

func (s *Store) queryVouchers(ctx context.Context, query string, args ...any) ([]models.Voucher, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []models.Voucher
	for rows.Next() {
		var v models.Voucher
		if err := scanVoucher(rows, &v); err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

// ClaimMatch links a pending shadow entry to a draft voucher. When the
// voucher belongs to a correlation group every member of the group is
// flipped to MATCHED in the same transaction. Each update is guarded on the
// prior state; if any guard fails nothing is written and ErrMatchConflict is
// returned. It returns the ids of the matched vouchers.
func (s *Store) ClaimMatch(ctx context.Context, shadowID, voucherID string) ([]string, error) {
	var matched []string
	err := s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		matched = nil

		var groupID string
		err := tx.QueryRowContext(ctx,
			`SELECT group_id FROM vouchers WHERE id = ?`, voucherID,
		).Scan(&groupID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("voucher %s: %w", voucherID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load voucher: %w", err)
		}

		members := []string{voucherID}
		if groupID != "" {
			members, err = groupMembers(ctx, tx, groupID)
			if err != nil {
				return err
			}
		}

		for _, id := range members {
			res, err := tx.ExecContext(ctx, `
				UPDATE vouchers SET match_status = 'MATCHED', matched_shadow_id = ?
				WHERE id = ? AND status = 'DRAFT' AND match_status = 'UNMATCHED' AND reverted = 0
			`, shadowID, id)
			if err != nil {
				return fmt.Errorf("failed to claim voucher %s: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return fmt.Errorf("voucher %s: %w", id, ErrMatchConflict)
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE shadow_entries SET status = 'MATCHED', matched_voucher_id = ?
			WHERE id = ? AND status = 'PENDING'
		`, voucherID, shadowID)
		if err != nil {
			return fmt.Errorf("failed to claim shadow entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("shadow entry %s: %w", shadowID, ErrMatchConflict)
		}

		matched = members
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

func groupMembers(ctx context.Context, tx *sql.Tx, groupID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM vouchers WHERE group_id = ? AND reverted = 0 ORDER BY created_at, id`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordConflict counts a lost claim against a shadow entry.
func (s *Store) RecordConflict(ctx context.Context, shadowID string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE shadow_entries SET conflicts = conflicts + 1 WHERE id = ?`, shadowID,
	)
	if err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}
	return nil
}

// AssignGroup sets the correlation group of unmatched vouchers that have
// none yet. Vouchers already grouped or matched are left untouched. It
// returns the number of vouchers written.
func (s *Store) AssignGroup(ctx context.Context, groupID string, voucherIDs []string) (int, error) {
	assigned := 0
	err := s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		assigned = 0
		for _, id := range voucherIDs {
			res, err := tx.ExecContext(ctx, `
				UPDATE vouchers SET group_id = ?
				WHERE id = ? AND group_id = '' AND match_status = 'UNMATCHED'
			`, groupID, id)
			if err != nil {
				return fmt.Errorf("failed to assign group: %w", err)
			}
			n, _ := res.RowsAffected()
			assigned += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}
