package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// PriceSamples returns amounts of approved, non-reverted vouchers booked
// against category since the given time, newest first.
func (s *Store) PriceSamples(ctx context.Context, category string, since time.Time, limit int) ([]models.PriceSample, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT amount, vendor, created_at FROM vouchers
		WHERE category = ? AND approved = 1 AND reverted = 0 AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`, category, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price samples: %w", err)
	}
	defer rows.Close()

	var samples []models.PriceSample
	for rows.Next() {
		var amount string
		var createdAt int64
		var sample models.PriceSample
		if err := rows.Scan(&amount, &sample.Vendor, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan price sample: %w", err)
		}
		sample.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("malformed price sample %q: %w", amount, err)
		}
		sample.CreatedAt = time.UnixMilli(createdAt).UTC()
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// PreferredCategory returns the category most often approved for vendor, or
// an empty string when the vendor has no history. Vendors are keyed the way
// trust is, by models.NormalizeVendor.
func (s *Store) PreferredCategory(ctx context.Context, vendor string) (string, error) {
	var category string
	err := s.conn.QueryRowContext(ctx, `
		SELECT category FROM vouchers
		WHERE vendor_key = ? AND approved = 1 AND reverted = 0
		GROUP BY category
		ORDER BY COUNT(*) DESC, MAX(created_at) DESC
		LIMIT 1
	`, models.NormalizeVendor(vendor)).Scan(&category)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get preferred category: %w", err)
	}
	return category, nil
}

// DepartmentSpend sums the non-reverted debit lines charged to department in
// period.
func (s *Store) DepartmentSpend(ctx context.Context, department, period string) (decimal.Decimal, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT l.amount FROM voucher_lines l
		JOIN vouchers v ON v.id = l.voucher_id
		WHERE l.department = ? AND l.direction = 'DEBIT' AND v.period = ? AND v.reverted = 0
	`, department, period)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query department spend: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan department spend: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("malformed line amount %q: %w", amount, err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

// PostedVouchers returns the posted, non-reverted vouchers of period with
// their lines, in voucher number order. An empty period returns every period.
func (s *Store) PostedVouchers(ctx context.Context, period string) ([]models.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers v
		WHERE v.status = 'POSTED' AND v.reverted = 0`
	var args []any
	if period != "" {
		query += ` AND v.period = ?`
		args = append(args, period)
	}
	query += ` ORDER BY v.period, v.voucher_type, v.number`

	vouchers, err := s.queryVouchers(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for i := range vouchers {
		lines, err := loadLines(ctx, s.conn.GetDB(), vouchers[i].ID)
		if err != nil {
			return nil, err
		}
		vouchers[i].Lines = lines
	}
	return vouchers, nil
}
