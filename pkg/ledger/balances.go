package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

const balanceColumns = `account_code, period, opening_debit, opening_credit, period_debit, period_credit,
	ytd_debit, ytd_credit, closing_debit, closing_credit`

func scanBalance(row rowScanner) (models.AccountBalance, error) {
	var b models.AccountBalance
	var raw [8]string
	if err := row.Scan(&b.AccountCode, &b.Period,
		&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &raw[6], &raw[7],
	); err != nil {
		return b, err
	}

	targets := []*decimal.Decimal{
		&b.OpeningDebit, &b.OpeningCredit, &b.PeriodDebit, &b.PeriodCredit,
		&b.YTDDebit, &b.YTDCredit, &b.ClosingDebit, &b.ClosingCredit,
	}
	for i, target := range targets {
		d, err := decimal.NewFromString(raw[i])
		if err != nil {
			return b, fmt.Errorf("balance %s/%s has malformed value %q: %w", b.AccountCode, b.Period, raw[i], err)
		}
		*target = d
	}
	return b, nil
}

func zeroBalance(account, period string) models.AccountBalance {
	return models.AccountBalance{
		AccountCode:   account,
		Period:        period,
		OpeningDebit:  decimal.Zero,
		OpeningCredit: decimal.Zero,
		PeriodDebit:   decimal.Zero,
		PeriodCredit:  decimal.Zero,
		YTDDebit:      decimal.Zero,
		YTDCredit:     decimal.Zero,
		ClosingDebit:  decimal.Zero,
		ClosingCredit: decimal.Zero,
	}
}

func sameYear(a, b string) bool {
	return len(a) >= 4 && len(b) >= 4 && a[:4] == b[:4]
}

// loadBalance returns the stored row, or a row carried forward from the
// latest earlier period when none exists yet.
func loadBalance(ctx context.Context, q queryer, account, period string) (models.AccountBalance, bool, error) {
	b, err := scanBalance(q.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM account_balances WHERE account_code = ? AND period = ?`,
		account, period,
	))
	if err == nil {
		return b, true, nil
	}
	if err != sql.ErrNoRows {
		return b, false, fmt.Errorf("failed to load balance: %w", err)
	}

	fresh := zeroBalance(account, period)
	prior, err := scanBalance(q.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM account_balances
		WHERE account_code = ? AND period < ?
		ORDER BY period DESC LIMIT 1`,
		account, period,
	))
	if err == sql.ErrNoRows {
		return fresh, false, nil
	}
	if err != nil {
		return fresh, false, fmt.Errorf("failed to load prior balance: %w", err)
	}

	fresh.OpeningDebit = prior.ClosingDebit
	fresh.OpeningCredit = prior.ClosingCredit
	fresh.ClosingDebit = prior.ClosingDebit
	fresh.ClosingCredit = prior.ClosingCredit
	if sameYear(prior.Period, period) {
		fresh.YTDDebit = prior.YTDDebit
		fresh.YTDCredit = prior.YTDCredit
	}
	return fresh, false, nil
}

func saveBalance(ctx context.Context, tx *sql.Tx, b models.AccountBalance) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_code, period) DO UPDATE SET
			opening_debit = excluded.opening_debit,
			opening_credit = excluded.opening_credit,
			period_debit = excluded.period_debit,
			period_credit = excluded.period_credit,
			ytd_debit = excluded.ytd_debit,
			ytd_credit = excluded.ytd_credit,
			closing_debit = excluded.closing_debit,
			closing_credit = excluded.closing_credit
	`,
		b.AccountCode, b.Period,
		b.OpeningDebit.String(), b.OpeningCredit.String(),
		b.PeriodDebit.String(), b.PeriodCredit.String(),
		b.YTDDebit.String(), b.YTDCredit.String(),
		b.ClosingDebit.String(), b.ClosingCredit.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save balance %s/%s: %w", b.AccountCode, b.Period, err)
	}
	return nil
}

// applyLine adds (or with negate, removes) one ledger line to the balance of
// its account in period and rolls the change forward into later periods.
func applyLine(ctx context.Context, tx *sql.Tx, line models.LedgerEntry, period string, negate bool) error {
	amount := line.Amount
	if negate {
		amount = amount.Neg()
	}
	debit, credit := decimal.Zero, decimal.Zero
	if line.Direction == models.Debit {
		debit = amount
	} else {
		credit = amount
	}

	b, _, err := loadBalance(ctx, tx, line.AccountCode, period)
	if err != nil {
		return err
	}
	b.PeriodDebit = b.PeriodDebit.Add(debit)
	b.PeriodCredit = b.PeriodCredit.Add(credit)
	b.YTDDebit = b.YTDDebit.Add(debit)
	b.YTDCredit = b.YTDCredit.Add(credit)
	b.ClosingDebit = b.ClosingDebit.Add(debit)
	b.ClosingCredit = b.ClosingCredit.Add(credit)
	if err := saveBalance(ctx, tx, b); err != nil {
		return err
	}

	later, err := laterBalances(ctx, tx, line.AccountCode, period)
	if err != nil {
		return err
	}
	for _, lb := range later {
		lb.OpeningDebit = lb.OpeningDebit.Add(debit)
		lb.OpeningCredit = lb.OpeningCredit.Add(credit)
		lb.ClosingDebit = lb.ClosingDebit.Add(debit)
		lb.ClosingCredit = lb.ClosingCredit.Add(credit)
		if sameYear(lb.Period, period) {
			lb.YTDDebit = lb.YTDDebit.Add(debit)
			lb.YTDCredit = lb.YTDCredit.Add(credit)
		}
		if err := saveBalance(ctx, tx, lb); err != nil {
			return err
		}
	}
	return nil
}

func laterBalances(ctx context.Context, tx *sql.Tx, account, period string) ([]models.AccountBalance, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+balanceColumns+` FROM account_balances
		WHERE account_code = ? AND period > ?
		ORDER BY period`,
		account, period,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query later balances: %w", err)
	}
	defer rows.Close()

	var result []models.AccountBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// Balance returns the aggregates of account in period. A period without
// activity reports the balance carried forward from earlier periods.
func (s *Store) Balance(ctx context.Context, account, period string) (models.AccountBalance, error) {
	b, _, err := loadBalance(ctx, s.conn.GetDB(), account, period)
	return b, err
}

// Balances returns every stored aggregate of period, ordered by account.
func (s *Store) Balances(ctx context.Context, period string) ([]models.AccountBalance, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+balanceColumns+` FROM account_balances WHERE period = ? ORDER BY account_code`,
		period,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var result []models.AccountBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// TrialBalanceReport sums posted activity across all accounts.
type TrialBalanceReport struct {
	Debit    decimal.Decimal
	Credit   decimal.Decimal
	Accounts int
}

// Balanced reports whether total debits equal total credits.
func (r TrialBalanceReport) Balanced() bool {
	return r.Debit.Equal(r.Credit)
}

// Err returns a *ConsistencyError when the trial balance does not hold.
func (r TrialBalanceReport) Err() error {
	if r.Balanced() {
		return nil
	}
	return &ConsistencyError{
		Kind:   TrialBalanceMismatch,
		Detail: fmt.Sprintf("debit %s != credit %s", r.Debit, r.Credit),
	}
}

// TrialBalance sums the period activity of every account. An empty period
// covers the whole ledger.
func (s *Store) TrialBalance(ctx context.Context, period string) (TrialBalanceReport, error) {
	query := `SELECT account_code, period_debit, period_credit FROM account_balances`
	var args []any
	if period != "" {
		query += ` WHERE period = ?`
		args = append(args, period)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return TrialBalanceReport{}, fmt.Errorf("failed to query trial balance: %w", err)
	}
	defer rows.Close()

	report := TrialBalanceReport{Debit: decimal.Zero, Credit: decimal.Zero}
	accounts := map[string]struct{}{}
	for rows.Next() {
		var account, debit, credit string
		if err := rows.Scan(&account, &debit, &credit); err != nil {
			return TrialBalanceReport{}, fmt.Errorf("failed to scan trial balance: %w", err)
		}
		d, err := decimal.NewFromString(debit)
		if err != nil {
			return TrialBalanceReport{}, fmt.Errorf("account %s has malformed debit %q: %w", account, debit, err)
		}
		c, err := decimal.NewFromString(credit)
		if err != nil {
			return TrialBalanceReport{}, fmt.Errorf("account %s has malformed credit %q: %w", account, credit, err)
		}
		report.Debit = report.Debit.Add(d)
		report.Credit = report.Credit.Add(c)
		accounts[account] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return TrialBalanceReport{}, err
	}

	report.Accounts = len(accounts)
	return report, nil
}

// RebuildBalances discards all aggregates and recomputes them from posted,
// non-reverted vouchers. It returns the number of vouchers applied.
func (s *Store) RebuildBalances(ctx context.Context) (int, error) {
	applied := 0
	err := s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		applied = 0
		if _, err := tx.ExecContext(ctx, `DELETE FROM account_balances`); err != nil {
			return fmt.Errorf("failed to clear balances: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, period FROM vouchers
			WHERE status = 'POSTED' AND reverted = 0
			ORDER BY period, created_at, id
		`)
		if err != nil {
			return fmt.Errorf("failed to query posted vouchers: %w", err)
		}
		type posted struct{ id, period string }
		var vouchers []posted
		for rows.Next() {
			var p posted
			if err := rows.Scan(&p.id, &p.period); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan posted voucher: %w", err)
			}
			vouchers = append(vouchers, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, p := range vouchers {
			lines, err := loadLines(ctx, tx, p.id)
			if err != nil {
				return err
			}
			for _, line := range lines {
				if err := applyLine(ctx, tx, line, p.period, false); err != nil {
					return err
				}
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Balances rebuilt", "vouchers", applied)
	return applied, nil
}
