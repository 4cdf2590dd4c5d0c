package beancount

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// OpenDate dates the open directives of the accounts file.
const OpenDate = "1970-01-01"

// VoucherSource yields the vouchers to export.
type VoucherSource interface {
	PostedVouchers(ctx context.Context, period string) ([]models.Voucher, error)
}

// ExportResult summarizes an export run.
type ExportResult struct {
	Months       []string
	Transactions int
}

// Exporter writes posted vouchers to monthly Beancount files.
type Exporter struct {
	source    VoucherSource
	converter *Converter
	repo      Repository
	logger    *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(source VoucherSource, converter *Converter, repo Repository, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		source:    source,
		converter: converter,
		repo:      repo,
		logger:    logger,
	}
}

// Export rewrites the monthly file of every period holding posted vouchers,
// restricted to period when it is not empty, plus the accounts file.
// A voucher whose postings do not sum to zero aborts the export before
// anything is written.
func (e *Exporter) Export(ctx context.Context, period string) (ExportResult, error) {
	vouchers, err := e.source.PostedVouchers(ctx, period)
	if err != nil {
		return ExportResult{}, fmt.Errorf("failed to load posted vouchers: %w", err)
	}

	var months []string
	byMonth := make(map[string][]string)
	for _, v := range vouchers {
		txn := e.converter.ConvertVoucher(v)
		if total := txn.Total(); !total.IsZero() {
			return ExportResult{}, fmt.Errorf("voucher %s does not balance: postings sum to %s", v.ID, total)
		}
		if _, ok := byMonth[v.Period]; !ok {
			months = append(months, v.Period)
		}
		byMonth[v.Period] = append(byMonth[v.Period], e.converter.FormatTransaction(txn))
	}

	if err := e.repo.WriteAccountsFile(e.converter.OpenDirectives(OpenDate)); err != nil {
		return ExportResult{}, err
	}

	result := ExportResult{}
	for _, month := range months {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := e.repo.WriteMonthFile(month, byMonth[month]); err != nil {
			return result, fmt.Errorf("failed to write %s: %w", month, err)
		}
		result.Months = append(result.Months, month)
		result.Transactions += len(byMonth[month])
		e.logger.Debug("exported month", "period", month, "transactions", len(byMonth[month]))
	}

	e.logger.Info("journal exported", "months", len(result.Months), "transactions", result.Transactions)
	return result, nil
}
