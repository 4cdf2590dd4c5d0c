package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

const trustColumns = `vendor, status, consecutive_success, reject_count, consecutive_rejects, risk_level, updated_at`

func scanTrust(row rowScanner) (models.VendorTrust, error) {
	var t models.VendorTrust
	var status, riskLevel string
	var updatedAt int64
	if err := row.Scan(&t.Vendor, &status, &t.ConsecutiveSuccess, &t.RejectCount, &t.ConsecutiveRejects, &riskLevel, &updatedAt); err != nil {
		return t, err
	}
	t.Status = models.TrustStatus(status)
	t.RiskLevel = models.RiskLevel(riskLevel)
	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return t, nil
}

func loadTrust(ctx context.Context, q queryer, vendor string) (models.VendorTrust, error) {
	key := models.NormalizeVendor(vendor)
	t, err := scanTrust(q.QueryRowContext(ctx,
		`SELECT `+trustColumns+` FROM vendor_trust WHERE vendor = ?`, key,
	))
	if err == sql.ErrNoRows {
		return models.NewVendorTrust(vendor), nil
	}
	if err != nil {
		return t, fmt.Errorf("failed to load vendor trust: %w", err)
	}
	return t, nil
}

// Trust returns the trust state of vendor. Unseen vendors are GRAY.
func (s *Store) Trust(ctx context.Context, vendor string) (models.VendorTrust, error) {
	return loadTrust(ctx, s.conn.GetDB(), vendor)
}

// SaveTrust writes the trust state of a vendor.
func (s *Store) SaveTrust(ctx context.Context, t models.VendorTrust) error {
	t.Vendor = models.NormalizeVendor(t.Vendor)
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.now()
	}
	return s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		return saveTrust(ctx, tx, t)
	})
}

func saveTrust(ctx context.Context, tx *sql.Tx, t models.VendorTrust) error {
	if t.RiskLevel == "" {
		t.RiskLevel = models.RiskNormal
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO vendor_trust (`+trustColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vendor) DO UPDATE SET
			status = excluded.status,
			consecutive_success = excluded.consecutive_success,
			reject_count = excluded.reject_count,
			consecutive_rejects = excluded.consecutive_rejects,
			risk_level = excluded.risk_level,
			updated_at = excluded.updated_at
	`,
		models.NormalizeVendor(t.Vendor), string(t.Status), t.ConsecutiveSuccess, t.RejectCount,
		t.ConsecutiveRejects, string(t.RiskLevel), t.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save vendor trust: %w", err)
	}
	return nil
}

// TrustUpdate computes the next trust state of a vendor from its current one.
type TrustUpdate func(models.VendorTrust) models.VendorTrust

// TrustChange is a vendor trust state before and after an update.
type TrustChange struct {
	Before models.VendorTrust
	After  models.VendorTrust
}

// UpdateTrust applies update to the current trust state of vendor. The state
// is read and written inside one write transaction, so concurrent updates
// and revert decay are applied one after the other and never overwritten
// by a stale copy.
func (s *Store) UpdateTrust(ctx context.Context, vendor string, update TrustUpdate) (TrustChange, error) {
	var change TrustChange
	err := s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		change, err = applyTrust(ctx, tx, vendor, update, s.now())
		return err
	})
	return change, err
}

func applyTrust(ctx context.Context, tx *sql.Tx, vendor string, update TrustUpdate, now time.Time) (TrustChange, error) {
	before, err := loadTrust(ctx, tx, vendor)
	if err != nil {
		return TrustChange{}, err
	}
	after := update(before)
	after.Vendor = before.Vendor
	if after.UpdatedAt.IsZero() {
		after.UpdatedAt = now
	}
	if err := saveTrust(ctx, tx, after); err != nil {
		return TrustChange{}, err
	}
	return TrustChange{Before: before, After: after}, nil
}

// SetRiskLevel marks a vendor NORMAL or HIGH_RISK.
func (s *Store) SetRiskLevel(ctx context.Context, vendor string, level models.RiskLevel) error {
	return s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		t, err := loadTrust(ctx, tx, vendor)
		if err != nil {
			return err
		}
		t.RiskLevel = level
		t.UpdatedAt = s.now()
		return saveTrust(ctx, tx, t)
	})
}

// ListTrust returns every known vendor trust state.
func (s *Store) ListTrust(ctx context.Context) ([]models.VendorTrust, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+trustColumns+` FROM vendor_trust ORDER BY vendor`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor trust: %w", err)
	}
	defer rows.Close()

	var result []models.VendorTrust
	for rows.Next() {
		t, err := scanTrust(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor trust: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// decayTrust drops the success streak of a vendor whose approved voucher was
// reverted. A STABLE vendor falls back to GRAY.
func decayTrust(ctx context.Context, tx *sql.Tx, vendor string, now time.Time) error {
	t, err := loadTrust(ctx, tx, vendor)
	if err != nil {
		return err
	}
	t.ConsecutiveSuccess = 0
	if t.Status == models.TrustStable {
		t.Status = models.TrustGray
	}
	t.UpdatedAt = now
	return saveTrust(ctx, tx, t)
}
