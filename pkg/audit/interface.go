package audit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/ledger"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// Ledger is the part of the ledger store the audit engine reads and writes.
// *ledger.Store implements it.
//
//go:generate mockgen -destination=mocks/mock_ledger.go -package=mocks -source=interface.go Ledger
type Ledger interface {
	Trust(ctx context.Context, vendor string) (models.VendorTrust, error)
	UpdateTrust(ctx context.Context, vendor string, update ledger.TrustUpdate) (ledger.TrustChange, error)
	PreferredCategory(ctx context.Context, vendor string) (string, error)
	PriceSamples(ctx context.Context, category string, since time.Time, limit int) ([]models.PriceSample, error)
	DepartmentSpend(ctx context.Context, department, period string) (decimal.Decimal, error)
	KnownCategory(ctx context.Context, code string) (bool, error)
	TrialBalance(ctx context.Context, period string) (ledger.TrialBalanceReport, error)
	AppendWithTrust(ctx context.Context, v *models.Voucher, update ledger.TrustUpdate) (ledger.TrustChange, error)
}

var _ Ledger = (*ledger.Store)(nil)
