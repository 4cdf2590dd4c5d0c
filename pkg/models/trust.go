package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TrustStatus is the vendor trust lifecycle state.
type TrustStatus string

const (
	TrustGray    TrustStatus = "GRAY"
	TrustStable  TrustStatus = "STABLE"
	TrustBlocked TrustStatus = "BLOCKED"
)

// RiskLevel is an operator-assigned vendor risk marker.
type RiskLevel string

const (
	RiskNormal RiskLevel = "NORMAL"
	RiskHigh   RiskLevel = "HIGH_RISK"
)

// VendorTrust is the per-vendor trust state read by the classifier and
// updated after every audit decision.
type VendorTrust struct {
	Vendor             string      `json:"vendor"`
	Status             TrustStatus `json:"status"`
	ConsecutiveSuccess int         `json:"consecutive_success"`
	RejectCount        int         `json:"reject_count"`
	ConsecutiveRejects int         `json:"consecutive_rejects"`
	RiskLevel          RiskLevel   `json:"risk_level"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// NewVendorTrust returns the initial trust state of an unseen vendor.
func NewVendorTrust(vendor string) VendorTrust {
	return VendorTrust{
		Vendor:    NormalizeVendor(vendor),
		Status:    TrustGray,
		RiskLevel: RiskNormal,
	}
}

// NormalizeVendor returns the key under which vendor trust is stored.
func NormalizeVendor(vendor string) string {
	return strings.ToLower(strings.Join(strings.Fields(vendor), " "))
}

// ShadowStatus is the reconciliation state of a shadow entry.
type ShadowStatus string

const (
	ShadowPending ShadowStatus = "PENDING"
	ShadowMatched ShadowStatus = "MATCHED"
)

// ShadowEntry is an externally observed cash movement not yet linked to a
// ledger transaction.
type ShadowEntry struct {
	ID               string          `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	VendorKeyword    string          `json:"vendor_keyword"`
	CreatedAt        time.Time       `json:"created_at"`
	Status           ShadowStatus    `json:"status"`
	MatchedVoucherID string          `json:"matched_voucher_id,omitempty"`
}

// PriceSample is a historical amount booked against a category.
type PriceSample struct {
	Amount    decimal.Decimal
	Vendor    string
	CreatedAt time.Time
}
