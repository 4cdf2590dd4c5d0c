// Package models defines the bookkeeping records shared by the audit engine,
// the ledger store and the reconciliation engine.
package models

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// Well-known proposal tags.
const (
	TagDepartment   = "department"
	TagProject      = "project"
	TagCounterparty = "counterparty"
	TagContract     = "contract"
	TagInvoice      = "invoice"
	TagReference    = "reference"
	TagVoucherType  = "voucher_type"
)

// ProposedEntry is a classified spend item waiting for an audit decision.
// It is produced by an upstream classifier and consumed once.
type ProposedEntry struct {
	TraceID    string            `json:"trace_id" yaml:"trace_id"`
	Vendor     string            `json:"vendor" yaml:"vendor"`
	Amount     decimal.Decimal   `json:"amount" yaml:"-"`
	Category   string            `json:"category" yaml:"category"` // NNNN-NN
	Confidence float64           `json:"confidence" yaml:"confidence"`
	Tags       map[string]string `json:"tags,omitempty" yaml:"tags"`
}

// Tag returns the tag value or an empty string.
func (p ProposedEntry) Tag(key string) string {
	if p.Tags == nil {
		return ""
	}
	return p.Tags[key]
}

// AccountCode returns the four-digit account prefix of the category code.
func (p ProposedEntry) AccountCode() string {
	if len(p.Category) < 4 {
		return p.Category
	}
	return p.Category[:4]
}

var categoryPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ValidCategory reports whether code has the NNNN-NN category form.
func ValidCategory(code string) bool {
	return categoryPattern.MatchString(code)
}
