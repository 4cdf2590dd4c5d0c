package audit

import (
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/consensus"
)

// Outcome is the final verdict of a decision.
type Outcome string

const (
	OutcomeApproved Outcome = "APPROVED"
	OutcomeRejected Outcome = "REJECTED"
)

// Summary carries the fields common to both outcomes.
type Summary struct {
	TraceID    string          `json:"trace_id"`
	Reason     string          `json:"reason"`
	RiskScore  float64         `json:"risk_score"`
	AuditScore float64         `json:"audit_score"`
	IsRisky    bool            `json:"is_risky"`
	Reasons    []string        `json:"reasons,omitempty"`
	Votes      consensus.Votes `json:"votes,omitempty"`
	// VoucherID is set on approvals once the voucher is in the ledger.
	VoucherID string `json:"voucher_id,omitempty"`
}

// Decision is either Approved or Rejected. Callers switch on the concrete
// type:
//
//	switch d := decision.(type) {
//	case audit.Approved:
//	case audit.Rejected:
//	}
type Decision interface {
	Outcome() Outcome
	Details() Summary
	sealed()
}

// Approved means the proposal was admitted into the ledger as a draft voucher.
type Approved struct {
	Summary
}

// Rejected means nothing was written to the ledger.
type Rejected struct {
	Summary
}

func (Approved) Outcome() Outcome { return OutcomeApproved }
func (d Approved) Details() Summary { return d.Summary }
func (Approved) sealed() {}

func (Rejected) Outcome() Outcome { return OutcomeRejected }
func (d Rejected) Details() Summary { return d.Summary }
func (Rejected) sealed() {}
