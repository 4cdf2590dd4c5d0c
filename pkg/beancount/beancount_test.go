package beancount

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/db"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/ledger"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/pathutil"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/rules"
)

var chart = []models.Account{
	{Code: "1002-01", Name: "Bank deposits", Type: rules.AccountAsset},
	{Code: "2202", Name: "Accounts payable", Type: rules.AccountLiability},
	{Code: "6601-01", Name: "Office supplies", Type: rules.AccountExpense},
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func expense(vendor, amount string, at time.Time) *models.Voucher {
	a := dec(amount)
	return &models.Voucher{
		TraceID:   "trace-" + vendor,
		Vendor:    vendor,
		Category:  "6601-01",
		Amount:    a,
		CreatedAt: at,
		Lines: []models.LedgerEntry{
			{AccountCode: "6601-01", Direction: models.Debit, Amount: a},
			{AccountCode: "2202", Direction: models.Credit, Amount: a},
		},
	}
}

func TestAccountName(t *testing.T) {
	c := NewConverter(chart, "")

	tests := []struct {
		code     string
		expected string
	}{
		{code: "1002-01", expected: "Assets:1002-01"},
		{code: "2202", expected: "Liabilities:2202"},
		{code: "6601-01", expected: "Expenses:6601-01"},
		{code: "9999", expected: "Expenses:Unmapped:9999"},
		{code: "99 99", expected: "Expenses:Unmapped:9999"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.AccountName(tt.code))
		})
	}
}

func TestConvertAndFormatVoucher(t *testing.T) {
	c := NewConverter(chart, "")
	v := models.Voucher{
		ID:        "v-1",
		Period:    "2026-03",
		Type:      models.VoucherTypePayment,
		Number:    3,
		TraceID:   "t-1",
		Vendor:    `Acme "Co"`,
		Category:  "6601-01",
		GroupID:   "g1",
		CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Lines: []models.LedgerEntry{
			{AccountCode: "6601-01", Direction: models.Debit, Amount: dec("99.9"), Department: "sales"},
			{AccountCode: "2202", Direction: models.Credit, Amount: dec("99.9")},
		},
	}

	txn := c.ConvertVoucher(v)
	assert.True(t, txn.Total().IsZero())
	assert.Equal(t, "2026-03-10", txn.Date)
	assert.Equal(t, []string{"payment"}, txn.Tags)
	assert.Equal(t, []string{"group-g1"}, txn.Links)

	pad := strings.Repeat(" ", 44)
	expected := `2026-03-10 * "Acme \"Co\"" "PAYMENT-3 Office supplies" #payment ^group-g1` + "\n" +
		`  trace_id: "t-1"` + "\n" +
		`  voucher_id: "v-1"` + "\n" +
		"  Expenses:6601-01" + pad + "99.90 JPY ; department sales\n" +
		"  Liabilities:2202" + pad + "-99.90 JPY\n"
	assert.Equal(t, expected, c.FormatTransaction(txn))
}

func TestOpenDirectives(t *testing.T) {
	c := NewConverter(chart, "USD")
	expected := "1970-01-01 open Assets:1002-01 USD ; Bank deposits\n" +
		"1970-01-01 open Liabilities:2202 USD ; Accounts payable\n" +
		"1970-01-01 open Expenses:6601-01 USD ; Office supplies\n"
	assert.Equal(t, expected, c.OpenDirectives(OpenDate))
}

func TestExportPostedVouchers(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	store := ledger.NewStore(conn)
	ctx := context.Background()

	march := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	posted := []*models.Voucher{
		expense("Acme", "120.00", march),
		expense("Globex", "30.00", march.Add(48*time.Hour)),
		expense("Initech", "50.00", april),
	}
	for _, v := range posted {
		require.NoError(t, store.Append(ctx, v))
		require.NoError(t, store.Post(ctx, v.ID))
	}

	draft := expense("Hooli", "10.00", march.Add(time.Hour))
	require.NoError(t, store.Append(ctx, draft))

	reverted := expense("Umbrella", "70.00", march.Add(2*time.Hour))
	require.NoError(t, store.Append(ctx, reverted))
	require.NoError(t, store.Post(ctx, reverted.ID))
	require.NoError(t, store.Revert(ctx, reverted.ID, "duplicate"))

	paths := pathutil.New(pathutil.Config{DataRoot: t.TempDir()})
	repo := NewFileSystemRepository(paths)
	exporter := NewExporter(store, NewConverter(chart, ""), repo, nil)

	result, err := exporter.Export(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03", "2026-04"}, result.Months)
	assert.Equal(t, 3, result.Transactions)

	content, err := repo.ReadMonthFile("2026-03")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content, "; Beancount file for 2026-03\n"))
	assert.Contains(t, content, `"Acme"`)
	assert.Contains(t, content, `"Globex"`)
	assert.NotContains(t, content, "Hooli")
	assert.NotContains(t, content, "Umbrella")

	months, err := repo.GetMonthFilesInYear("2026")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03", "2026-04"}, months)
	assert.True(t, paths.FileExists(filepath.Join(paths.GetJournalDir(), AccountsFile)))

	result, err = exporter.Export(ctx, "2026-04")
	require.NoError(t, err)
	assert.Equal(t, ExportResult{Months: []string{"2026-04"}, Transactions: 1}, result)

	again, err := repo.ReadMonthFile("2026-04")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(again, `"Initech"`))
}

type staticSource []models.Voucher

func (s staticSource) PostedVouchers(context.Context, string) ([]models.Voucher, error) {
	return s, nil
}

func TestExportRejectsUnbalancedVoucher(t *testing.T) {
	source := staticSource{{
		ID:        "broken",
		Period:    "2026-03",
		Type:      models.VoucherTypeGeneral,
		CreatedAt: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Lines: []models.LedgerEntry{
			{AccountCode: "6601-01", Direction: models.Debit, Amount: dec("10")},
			{AccountCode: "2202", Direction: models.Credit, Amount: dec("9")},
		},
	}}

	paths := pathutil.New(pathutil.Config{DataRoot: t.TempDir()})
	repo := NewFileSystemRepository(paths)
	_, err := NewExporter(source, NewConverter(chart, ""), repo, nil).Export(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.False(t, repo.MonthFileExists("2026-03"))
}
