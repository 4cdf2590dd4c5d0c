package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a ledger line.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// VoucherStatus is the posting state of a voucher.
type VoucherStatus string

const (
	VoucherDraft  VoucherStatus = "DRAFT"
	VoucherPosted VoucherStatus = "POSTED"
)

// MatchStatus is the reconciliation state of a draft transaction.
type MatchStatus string

const (
	MatchUnmatched MatchStatus = "UNMATCHED"
	MatchMatched   MatchStatus = "MATCHED"
)

// Voucher types.
const (
	VoucherTypeGeneral = "GENERAL"
	VoucherTypePayment = "PAYMENT"
	VoucherTypeReceipt = "RECEIPT"
)

// LedgerEntry is one debit or credit line of a voucher.
type LedgerEntry struct {
	AccountCode  string          `json:"account_code"`
	Direction    Direction       `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	Project      string          `json:"project,omitempty"`
	Department   string          `json:"department,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
}

// Voucher is a balanced set of ledger lines representing one transaction.
type Voucher struct {
	ID              string          `json:"id"`
	Period          string          `json:"period"` // YYYY-MM
	Type            string          `json:"type"`
	Number          int64           `json:"number"`
	Status          VoucherStatus   `json:"status"`
	TraceID         string          `json:"trace_id"`
	Vendor          string          `json:"vendor"`
	Category        string          `json:"category"`
	Amount          decimal.Decimal `json:"amount"`
	Reference       string          `json:"reference,omitempty"`
	Fingerprint     string          `json:"fingerprint,omitempty"`
	Lines           []LedgerEntry   `json:"lines"`
	Approved        bool            `json:"approved"`
	Reverted        bool            `json:"reverted"`
	RevertReason    string          `json:"revert_reason,omitempty"`
	MatchStatus     MatchStatus     `json:"match_status"`
	MatchedShadowID string          `json:"matched_shadow_id,omitempty"`
	GroupID         string          `json:"group_id,omitempty"`
	Seq             int64           `json:"seq"`
	PrevHash        string          `json:"prev_hash"`
	ContentHash     string          `json:"content_hash"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Totals returns the debit and credit sums of the voucher lines.
func (v *Voucher) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range v.Lines {
		switch line.Direction {
		case Debit:
			debit = debit.Add(line.Amount)
		case Credit:
			credit = credit.Add(line.Amount)
		}
	}
	return debit, credit
}

// ChainBlock links a voucher into the tamper-evident hash sequence.
type ChainBlock struct {
	Seq         int64           `json:"seq"`
	VoucherID   string          `json:"voucher_id"`
	TraceID     string          `json:"trace_id"`
	Amount      decimal.Decimal `json:"amount"`
	Vendor      string          `json:"vendor"`
	PrevHash    string          `json:"prev_hash"`
	ContentHash string          `json:"content_hash"`
}

// AccountBalance holds the debit and credit aggregates of one account in one period.
type AccountBalance struct {
	AccountCode   string          `json:"account_code"`
	Period        string          `json:"period"`
	OpeningDebit  decimal.Decimal `json:"opening_debit"`
	OpeningCredit decimal.Decimal `json:"opening_credit"`
	PeriodDebit   decimal.Decimal `json:"period_debit"`
	PeriodCredit  decimal.Decimal `json:"period_credit"`
	YTDDebit      decimal.Decimal `json:"ytd_debit"`
	YTDCredit     decimal.Decimal `json:"ytd_credit"`
	ClosingDebit  decimal.Decimal `json:"closing_debit"`
	ClosingCredit decimal.Decimal `json:"closing_credit"`
}

// Account is a chart-of-accounts entry.
type Account struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}
