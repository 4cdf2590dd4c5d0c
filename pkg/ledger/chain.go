package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// GenesisHash is the prev_hash of the first chain block.
var GenesisHash = strings.Repeat("0", 64)

// ContentHash computes the chain hash of a voucher linked to prevHash.
// Vouchers carry whole cents, so the amount is hashed in its stored
// two-decimal form.
func ContentHash(traceID string, amount decimal.Decimal, vendor, prevHash string) string {
	h := sha256.New()
	h.Write([]byte(traceID))
	h.Write([]byte{'|'})
	h.Write([]byte(amount.StringFixed(2)))
	h.Write([]byte{'|'})
	h.Write([]byte(vendor))
	h.Write([]byte{'|'})
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

func chainHead(ctx context.Context, tx *sql.Tx) (string, error) {
	var head string
	err := tx.QueryRowContext(ctx,
		`SELECT content_hash FROM chain_blocks ORDER BY seq DESC LIMIT 1`,
	).Scan(&head)
	if err == sql.ErrNoRows {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read chain head: %w", err)
	}
	return head, nil
}

// ChainReport is the result of a chain verification.
type ChainReport struct {
	Valid bool
	// FirstDivergence is the 0-based index of the first block whose link or
	// content hash does not verify, or -1 when the chain is intact.
	FirstDivergence int
	// VoucherID identifies the diverging block's voucher.
	VoucherID string
	Checked   int
}

// Err returns a *ConsistencyError describing a divergence, or nil.
func (r ChainReport) Err() error {
	if r.Valid {
		return nil
	}
	return &ConsistencyError{
		Kind:   ChainDivergence,
		Detail: fmt.Sprintf("first divergence at block %d (voucher %s)", r.FirstDivergence, r.VoucherID),
	}
}

// VerifyChain recomputes the hash sequence from the first block and reports
// the first divergence. It only reads, so it can be re-run at any time.
func (s *Store) VerifyChain(ctx context.Context) (ChainReport, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT b.voucher_id, v.trace_id, v.amount, v.vendor, b.prev_hash, b.content_hash
		FROM chain_blocks b
		JOIN vouchers v ON v.id = b.voucher_id
		ORDER BY b.seq
	`)
	if err != nil {
		return ChainReport{}, fmt.Errorf("failed to query chain: %w", err)
	}
	defer rows.Close()

	report := ChainReport{Valid: true, FirstDivergence: -1}
	prev := GenesisHash
	for rows.Next() {
		var voucherID, traceID, amount, vendor, prevHash, contentHash string
		if err := rows.Scan(&voucherID, &traceID, &amount, &vendor, &prevHash, &contentHash); err != nil {
			return ChainReport{}, fmt.Errorf("failed to scan chain block: %w", err)
		}

		index := report.Checked
		report.Checked++

		// a stored amount must be in the exact form that was hashed
		parsed, err := decimal.NewFromString(amount)
		if err != nil || amount != parsed.StringFixed(2) || prevHash != prev ||
			ContentHash(traceID, parsed, vendor, prevHash) != contentHash {
			report.Valid = false
			report.FirstDivergence = index
			report.VoucherID = voucherID
			s.logger.Error("Ledger chain divergence",
				"critical", true,
				"index", index,
				"voucher_id", voucherID,
			)
			return report, nil
		}
		prev = contentHash
	}
	if err := rows.Err(); err != nil {
		return ChainReport{}, fmt.Errorf("failed to iterate chain: %w", err)
	}

	return report, nil
}
