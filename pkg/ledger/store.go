// Package ledger implements the append-only, hash-chained, double-entry
// ledger on top of SQLite.
//
// Every mutation runs inside a short transaction with a guarded conditional
// update, so concurrent writers cannot lose updates. Lock contention is
// retried by the underlying db.Connection.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/db"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// Store is the ledger handle shared by the audit and reconciliation engines.
type Store struct {
	conn   *db.Connection
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for new records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a ledger store on an open connection.
func NewStore(conn *db.Connection, opts ...Option) *Store {
	s := &Store{
		conn:   conn,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fingerprint extracts the numeric fingerprint of a reference string.
// References with fewer than four digits carry no fingerprint.
func Fingerprint(reference string) string {
	var b strings.Builder
	for _, r := range reference {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() < 4 {
		return ""
	}
	return b.String()
}

func validateVoucher(v *models.Voucher) error {
	if len(v.Lines) == 0 {
		return &ValidationError{VoucherID: v.ID, Reason: "voucher has no lines"}
	}
	for i, line := range v.Lines {
		if line.AccountCode == "" {
			return &ValidationError{VoucherID: v.ID, Reason: fmt.Sprintf("line %d has no account", i)}
		}
		if line.Direction != models.Debit && line.Direction != models.Credit {
			return &ValidationError{VoucherID: v.ID, Reason: fmt.Sprintf("line %d has unknown direction %q", i, line.Direction)}
		}
		if line.Amount.IsNegative() {
			return &ValidationError{VoucherID: v.ID, Reason: fmt.Sprintf("line %d has negative amount %s", i, line.Amount)}
		}
		if !wholeCents(line.Amount) {
			return &ValidationError{VoucherID: v.ID, Reason: fmt.Sprintf("line %d amount %s has more than 2 decimal places", i, line.Amount)}
		}
	}
	if !wholeCents(v.Amount) {
		return &ValidationError{VoucherID: v.ID, Reason: fmt.Sprintf("amount %s has more than 2 decimal places", v.Amount)}
	}

	debit, credit := v.Totals()
	if !debit.Equal(credit) {
		return &ValidationError{VoucherID: v.ID, Reason: fmt.Sprintf("unbalanced: debit %s != credit %s", debit, credit)}
	}
	if debit.IsZero() {
		return &ValidationError{VoucherID: v.ID, Reason: "voucher total is zero"}
	}
	return nil
}

func wholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// Append validates v and writes it as a DRAFT voucher.
// It assigns the next voucher number within (period, type) and links the
// voucher to the current chain head. An unbalanced voucher is rejected with a
// *ValidationError and nothing is written. On success the assigned fields
// (ID, Number, Seq, hashes) are set on v.
func (s *Store) Append(ctx context.Context, v *models.Voucher) error {
	if err := validateVoucher(v); err != nil {
		return err
	}

	prepared := s.prepare(v)
	err := s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		return appendVoucher(ctx, tx, &prepared)
	})
	if err != nil {
		return err
	}

	*v = prepared
	s.logAppended(v)
	return nil
}

// AppendWithTrust appends v like Append and applies update to the trust
// state of v's vendor in the same transaction. Either both are written or
// neither is.
func (s *Store) AppendWithTrust(ctx context.Context, v *models.Voucher, update TrustUpdate) (TrustChange, error) {
	if err := validateVoucher(v); err != nil {
		return TrustChange{}, err
	}

	prepared := s.prepare(v)
	var change TrustChange
	err := s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		if err := appendVoucher(ctx, tx, &prepared); err != nil {
			return err
		}
		var err error
		change, err = applyTrust(ctx, tx, prepared.Vendor, update, s.now())
		return err
	})
	if err != nil {
		return TrustChange{}, err
	}

	*v = prepared
	s.logAppended(v)
	return change, nil
}

func (s *Store) prepare(v *models.Voucher) models.Voucher {
	prepared := *v
	if prepared.ID == "" {
		prepared.ID = uuid.NewString()
	}
	if prepared.CreatedAt.IsZero() {
		prepared.CreatedAt = s.now()
	}
	prepared.CreatedAt = prepared.CreatedAt.UTC().Truncate(time.Millisecond)
	if prepared.Period == "" {
		prepared.Period = prepared.CreatedAt.Format("2006-01")
	}
	if prepared.Type == "" {
		prepared.Type = models.VoucherTypeGeneral
	}
	if prepared.Amount.IsZero() {
		prepared.Amount, _ = prepared.Totals()
	}
	if prepared.Fingerprint == "" {
		prepared.Fingerprint = Fingerprint(prepared.Reference)
	}
	prepared.Status = models.VoucherDraft
	prepared.MatchStatus = models.MatchUnmatched
	prepared.Reverted = false
	return prepared
}

// appendVoucher writes prepared, its lines and its chain block, then sets the
// assigned number, sequence and hashes on it.
func appendVoucher(ctx context.Context, tx *sql.Tx, prepared *models.Voucher) error {
	var number int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM vouchers WHERE period = ? AND voucher_type = ?`,
		prepared.Period, prepared.Type,
	).Scan(&number); err != nil {
		return fmt.Errorf("failed to allocate voucher number: %w", err)
	}

	prevHash, err := chainHead(ctx, tx)
	if err != nil {
		return err
	}
	contentHash := ContentHash(prepared.TraceID, prepared.Amount, prepared.Vendor, prevHash)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vouchers (
			id, period, voucher_type, number, status, trace_id, vendor, vendor_key, category, amount,
			reference, fingerprint, approved, reverted, revert_reason,
			match_status, matched_shadow_id, group_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, '', ?, ?)
	`,
		prepared.ID, prepared.Period, prepared.Type, number, string(prepared.Status),
		prepared.TraceID, prepared.Vendor, models.NormalizeVendor(prepared.Vendor), prepared.Category, prepared.Amount.StringFixed(2),
		prepared.Reference, prepared.Fingerprint, boolToInt(prepared.Approved),
		string(prepared.MatchStatus), prepared.GroupID, prepared.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert voucher: %w", err)
	}

	for i, line := range prepared.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO voucher_lines (
				voucher_id, line_no, account_code, direction, amount, project, department, counterparty
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			prepared.ID, i, line.AccountCode, string(line.Direction), line.Amount.String(),
			line.Project, line.Department, line.Counterparty,
		)
		if err != nil {
			return fmt.Errorf("failed to insert voucher line %d: %w", i, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO chain_blocks (voucher_id, prev_hash, content_hash) VALUES (?, ?, ?)`,
		prepared.ID, prevHash, contentHash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chain block: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read chain sequence: %w", err)
	}

	prepared.Number = number
	prepared.Seq = seq
	prepared.PrevHash = prevHash
	prepared.ContentHash = contentHash
	return nil
}

func (s *Store) logAppended(v *models.Voucher) {
	s.logger.Debug("Voucher appended",
		"voucher_id", v.ID,
		"period", v.Period,
		"number", v.Number,
		"trace_id", v.TraceID,
	)
}

// Post moves a DRAFT voucher to POSTED and adds its lines to the account
// balances. Posting an already POSTED voucher is a no-op.
func (s *Store) Post(ctx context.Context, voucherID string) error {
	posted := false
	err := s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		posted = false

		var period string
		var reverted int
		err := tx.QueryRowContext(ctx,
			`SELECT period, reverted FROM vouchers WHERE id = ?`, voucherID,
		).Scan(&period, &reverted)
		if err == sql.ErrNoRows {
			return fmt.Errorf("voucher %s: %w", voucherID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load voucher: %w", err)
		}
		if reverted != 0 {
			return &ValidationError{VoucherID: voucherID, Reason: "voucher is reverted"}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE vouchers SET status = 'POSTED' WHERE id = ? AND status = 'DRAFT' AND reverted = 0`,
			voucherID,
		)
		if err != nil {
			return fmt.Errorf("failed to post voucher: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		lines, err := loadLines(ctx, tx, voucherID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := applyLine(ctx, tx, line, period, false); err != nil {
				return err
			}
		}
		posted = true
		return nil
	})
	if err != nil {
		return err
	}

	if posted {
		s.logger.Debug("Voucher posted", "voucher_id", voucherID)
	}
	return nil
}

// Revert logically deletes a voucher. The row is kept and flagged; if the
// voucher was posted its balance contribution is reversed, and if it had been
// approved by the audit engine the vendor's trust decays. Reverting twice is
// a no-op.
func (s *Store) Revert(ctx context.Context, voucherID, reason string) error {
	err := s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		var period, status, vendor string
		var approved int
		err := tx.QueryRowContext(ctx,
			`SELECT period, status, vendor, approved FROM vouchers WHERE id = ?`, voucherID,
		).Scan(&period, &status, &vendor, &approved)
		if err == sql.ErrNoRows {
			return fmt.Errorf("voucher %s: %w", voucherID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load voucher: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE vouchers SET reverted = 1, revert_reason = ? WHERE id = ? AND reverted = 0`,
			reason, voucherID,
		)
		if err != nil {
			return fmt.Errorf("failed to revert voucher: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		if models.VoucherStatus(status) == models.VoucherPosted {
			lines, err := loadLines(ctx, tx, voucherID)
			if err != nil {
				return err
			}
			for _, line := range lines {
				if err := applyLine(ctx, tx, line, period, true); err != nil {
					return err
				}
			}
		}

		if approved != 0 {
			if err := decayTrust(ctx, tx, vendor, s.now()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Voucher reverted", "voucher_id", voucherID, "reason", reason)
	return nil
}

// GetVoucher loads a voucher with its lines and chain block.
func (s *Store) GetVoucher(ctx context.Context, voucherID string) (*models.Voucher, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+voucherColumns+`, COALESCE(b.seq, 0), COALESCE(b.prev_hash, ''), COALESCE(b.content_hash, '')
		FROM vouchers v LEFT JOIN chain_blocks b ON b.voucher_id = v.id
		WHERE v.id = ?`,
		voucherID,
	)

	var v models.Voucher
	err := scanVoucher(row, &v, &v.Seq, &v.PrevHash, &v.ContentHash)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("voucher %s: %w", voucherID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}

	lines, err := loadLines(ctx, s.conn.GetDB(), voucherID)
	if err != nil {
		return nil, err
	}
	v.Lines = lines
	return &v, nil
}

// SeedChart inserts or updates chart-of-accounts entries.
func (s *Store) SeedChart(ctx context.Context, accounts []models.Account) error {
	return s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		for _, account := range accounts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO accounts (code, name, type) VALUES (?, ?, ?)
				ON CONFLICT(code) DO UPDATE SET name = excluded.name, type = excluded.type
			`, account.Code, account.Name, account.Type)
			if err != nil {
				return fmt.Errorf("failed to seed account %s: %w", account.Code, err)
			}
		}
		return nil
	})
}

// KnownCategory reports whether code is well-formed and present in the
// chart of accounts.
func (s *Store) KnownCategory(ctx context.Context, code string) (bool, error) {
	if !models.ValidCategory(code) {
		return false, nil
	}

	var exists int
	err := s.conn.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE code = ?`, code).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up category: %w", err)
	}
	return true, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const voucherColumns = `v.id, v.period, v.voucher_type, v.number, v.status, v.trace_id, v.vendor,
	v.category, v.amount, v.reference, v.fingerprint, v.approved, v.reverted, v.revert_reason,
	v.match_status, v.matched_shadow_id, v.group_id, v.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoucher(row rowScanner, v *models.Voucher, extra ...any) error {
	var status, matchStatus, amount string
	var approved, reverted int
	var createdAt int64

	dest := []any{
		&v.ID, &v.Period, &v.Type, &v.Number, &status, &v.TraceID, &v.Vendor,
		&v.Category, &amount, &v.Reference, &v.Fingerprint, &approved, &reverted, &v.RevertReason,
		&matchStatus, &v.MatchedShadowID, &v.GroupID, &createdAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("voucher %s has malformed amount %q: %w", v.ID, amount, err)
	}
	v.Amount = parsed
	v.Status = models.VoucherStatus(status)
	v.MatchStatus = models.MatchStatus(matchStatus)
	v.Approved = approved != 0
	v.Reverted = reverted != 0
	v.CreatedAt = time.UnixMilli(createdAt).UTC()
	return nil
}

func loadLines(ctx context.Context, q queryer, voucherID string) ([]models.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT account_code, direction, amount, project, department, counterparty
		FROM voucher_lines
		WHERE voucher_id = ?
		ORDER BY line_no
	`, voucherID)
	if err != nil {
		return nil, fmt.Errorf("failed to query voucher lines: %w", err)
	}
	defer rows.Close()

	var lines []models.LedgerEntry
	for rows.Next() {
		var line models.LedgerEntry
		var direction, amount string
		if err := rows.Scan(&line.AccountCode, &direction, &amount, &line.Project, &line.Department, &line.Counterparty); err != nil {
			return nil, fmt.Errorf("failed to scan voucher line: %w", err)
		}
		line.Direction = models.Direction(direction)
		line.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("voucher %s has malformed line amount %q: %w", voucherID, amount, err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
