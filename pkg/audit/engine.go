// Package audit decides whether a proposed entry is admitted into the ledger.
//
// A decision runs in one pass through the states RECEIVED, RISK_ASSESSED,
// optionally CONSENSUS_PENDING, and DECIDED. Risk checks are pure and run
// sequentially in the caller's goroutine.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/consensus"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/db"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/incident"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/ledger"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/risk"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/rules"
)

// State is a step of the decision state machine.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateRiskAssessed     State = "RISK_ASSESSED"
	StateConsensusPending State = "CONSENSUS_PENDING"
	StateDecided          State = "DECIDED"
)

// Engine orchestrates risk assessment, the review panel and ledger admission.
type Engine struct {
	ledger   Ledger
	rules    *rules.Holder
	strategy consensus.Strategy
	reporter incident.Reporter
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy overrides the consensus strategy of the rule file.
func WithStrategy(s consensus.Strategy) Option {
	return func(e *Engine) {
		e.strategy = s
	}
}

// WithReporter sets the operator channel for critical events.
func WithReporter(r incident.Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporter = r
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an audit engine.
func NewEngine(l Ledger, holder *rules.Holder, opts ...Option) (*Engine, error) {
	e := &Engine{
		ledger: l,
		rules:  holder,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reporter == nil {
		reporter, err := incident.NewLog("", e.logger)
		if err != nil {
			return nil, err
		}
		e.reporter = reporter
	}

	if e.strategy == "" {
		if _, err := consensus.ParseStrategy(holder.Current().Consensus.Strategy); err != nil {
			return nil, err
		}
	} else if _, err := consensus.ParseStrategy(string(e.strategy)); err != nil {
		return nil, err
	}
	return e, nil
}

// Decide returns the decision for entry. It always returns a decision: an
// unexpected failure yields Rejected with a zero audit score and is reported
// on the operator channel.
func (e *Engine) Decide(ctx context.Context, entry models.ProposedEntry) Decision {
	if entry.TraceID == "" {
		entry.TraceID = uuid.NewString()
	}

	decision, err := e.decide(ctx, entry)
	if err != nil {
		kind := incident.KindUnexpected
		if errors.Is(err, db.ErrTransient) {
			kind = incident.KindTransient
		}
		e.report(ctx, kind, entry.TraceID, "Audit decision failed, rejecting by default", err)
		return Rejected{Summary{
			TraceID:    entry.TraceID,
			Reason:     fmt.Sprintf("rejected by default after internal error: %v", err),
			RiskScore:  1,
			AuditScore: 0,
			IsRisky:    true,
		}}
	}
	return decision
}

type run struct {
	entry      models.ProposedEntry
	rules      *rules.Rules
	state      State
	assessment risk.Assessment
	convened   bool
	votes      consensus.Votes
	preferred  string
	logger     *slog.Logger
}

func (r *run) transition(to State) {
	r.logger.Debug("Audit state transition", "trace_id", r.entry.TraceID, "from", r.state, "to", to)
	r.state = to
}

func (r *run) summary(reason string) Summary {
	return Summary{
		TraceID:    r.entry.TraceID,
		Reason:     reason,
		RiskScore:  r.assessment.Score,
		AuditScore: risk.Clip((1 - r.assessment.Score) * risk.Clip(r.entry.Confidence)),
		IsRisky:    r.assessment.Score > r.rules.RejectThreshold || r.convened,
		Reasons:    r.assessment.Reasons,
		Votes:      r.votes,
	}
}

func (e *Engine) decide(ctx context.Context, entry models.ProposedEntry) (Decision, error) {
	r := &run{
		entry:  entry,
		rules:  e.rules.Current(),
		state:  StateReceived,
		logger: e.logger,
	}
	now := e.now()

	trust, err := e.ledger.Trust(ctx, entry.Vendor)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor trust: %w", err)
	}

	if !entry.Amount.IsPositive() {
		r.assessment = risk.Assessment{HardBlock: true, Reasons: []string{fmt.Sprintf("amount %s must be positive", entry.Amount)}}
		r.transition(StateRiskAssessed)
		return e.finish(ctx, r, false, "hard block: "+risk.Summary(r.assessment.Reasons), now)
	}

	format := risk.AssessCategoryFormat(entry.Category)
	if format.HardBlock {
		r.assessment = risk.Combine(format)
		r.transition(StateRiskAssessed)
		return e.finish(ctx, r, false, "hard block: "+risk.Summary(r.assessment.Reasons), now)
	}

	r.assessment, err = e.assess(ctx, r, trust, now)
	if err != nil {
		return nil, err
	}
	r.transition(StateRiskAssessed)

	if r.assessment.HardBlock {
		return e.finish(ctx, r, false, "hard block: "+risk.Summary(r.assessment.Reasons), now)
	}

	panel := consensus.NewEngine(r.rules.Consensus)
	r.convened = panel.ShouldConvene(r.assessment.Score, entry.Amount, r.rules.Amount)
	passed := true
	strategy := e.strategy
	if r.convened {
		r.transition(StateConsensusPending)
		if strategy == "" {
			strategy, err = consensus.ParseStrategy(r.rules.Consensus.Strategy)
			if err != nil {
				return nil, err
			}
		}
		r.votes = panel.Vote(consensus.Ballot{
			Entry:             entry,
			RiskScore:         r.assessment.Score,
			PreferredCategory: r.preferred,
			CategoryName:      r.rules.Chart.Name(entry.Category),
		})
		passed = consensus.Decide(r.votes, strategy)
		e.logger.Debug("Consensus vote",
			"trace_id", entry.TraceID,
			"strategy", strategy,
			"passed", r.votes.PassCount(),
			"total", len(r.votes),
			"approved", passed,
		)
	}

	if r.assessment.Score > r.rules.RejectThreshold {
		reason := fmt.Sprintf("risk score %.2f exceeds reject threshold %.2f: %s",
			r.assessment.Score, r.rules.RejectThreshold, risk.Summary(r.assessment.Reasons))
		return e.finish(ctx, r, false, reason, now)
	}
	if !passed {
		reason := fmt.Sprintf("review panel rejected under %s strategy (%d/%d passed): %s",
			strategy, r.votes.PassCount(), len(r.votes), strings.Join(r.votes.Vetoes(), "; "))
		return e.finish(ctx, r, false, reason, now)
	}

	known, err := e.ledger.KnownCategory(ctx, entry.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to check category: %w", err)
	}
	if !known {
		return e.finish(ctx, r, false, fmt.Sprintf("category %s is not in the chart of accounts", entry.Category), now)
	}

	e.checkTrialBalance(ctx, entry.TraceID)

	return e.finish(ctx, r, true, "", now)
}

func (e *Engine) assess(ctx context.Context, r *run, trust models.VendorTrust, now time.Time) (risk.Assessment, error) {
	entry := r.entry
	cfg := r.rules

	preferred, err := e.ledger.PreferredCategory(ctx, entry.Vendor)
	if err != nil {
		return risk.Assessment{}, fmt.Errorf("failed to load preferred category: %w", err)
	}
	r.preferred = preferred

	since := now.AddDate(0, 0, -cfg.PriceBenchmark.LookbackDays)
	samples, err := e.ledger.PriceSamples(ctx, entry.Category, since, cfg.PriceBenchmark.MaxSamples)
	if err != nil {
		return risk.Assessment{}, fmt.Errorf("failed to load price samples: %w", err)
	}

	budget := risk.BudgetStatus{Department: entry.Tag(models.TagDepartment)}
	if budget.Department != "" {
		if limit, ok := cfg.Budget(budget.Department); ok {
			spent, err := e.ledger.DepartmentSpend(ctx, budget.Department, now.Format("2006-01"))
			if err != nil {
				return risk.Assessment{}, fmt.Errorf("failed to load department spend: %w", err)
			}
			budget.Configured = true
			budget.Limit = limit
			budget.Spent = spent
		}
	}

	return risk.Combine(
		risk.AssessPriceBenchmark(entry.Category, entry.Amount, samples, now, cfg.PriceBenchmark),
		risk.AssessVendorRisk(entry.Vendor, entry.Category, trust, preferred, cfg.Vendor),
		risk.AssessAmountRisk(entry.Amount, cfg.Amount),
		risk.PerformComplianceCheck(entry, cfg.Relevance, budget).Assessment(),
	), nil
}

// checkTrialBalance logs a global imbalance as a critical event. It never
// blocks admission.
func (e *Engine) checkTrialBalance(ctx context.Context, traceID string) {
	report, err := e.ledger.TrialBalance(ctx, "")
	if err != nil {
		e.report(ctx, incident.KindTransient, traceID, "Trial balance check failed, admitting anyway", err)
		return
	}
	if cerr := report.Err(); cerr != nil {
		e.report(ctx, incident.KindConsistency, traceID, "Ledger trial balance mismatch, admitting anyway", cerr)
	}
}

// finish admits approved entries, updates vendor trust and builds the
// decision. An admitted voucher and its trust update commit together; the
// update is applied to the vendor's trust as stored at commit time, not to
// the copy read for scoring.
func (e *Engine) finish(ctx context.Context, r *run, approved bool, reason string, now time.Time) (Decision, error) {
	outcome := func(approved bool) ledger.TrustUpdate {
		return func(t models.VendorTrust) models.VendorTrust {
			return ApplyOutcome(t, approved, r.rules.Trust, now)
		}
	}

	var voucherID string
	var change ledger.TrustChange
	trusted := false
	if approved {
		v := buildVoucher(r.entry, r.rules.PayableAccount, now)
		admitted, err := e.ledger.AppendWithTrust(ctx, v, outcome(true))
		var verr *ledger.ValidationError
		switch {
		case errors.As(err, &verr):
			approved = false
			reason = fmt.Sprintf("ledger rejected voucher: %s", verr.Reason)
		case err != nil:
			return nil, fmt.Errorf("failed to append voucher: %w", err)
		default:
			voucherID = v.ID
			change = admitted
			trusted = true
			reason = fmt.Sprintf("approved with risk score %.2f (threshold %.2f)", r.assessment.Score, r.rules.RejectThreshold)
			if r.convened {
				reason += fmt.Sprintf("; review panel passed %d/%d", r.votes.PassCount(), len(r.votes))
			}
		}
	}

	if !approved {
		rejected, err := e.ledger.UpdateTrust(ctx, r.entry.Vendor, outcome(false))
		if err != nil {
			e.report(ctx, incident.KindTransient, r.entry.TraceID, "Vendor trust update failed", err)
		} else {
			change = rejected
			trusted = true
		}
	}
	if trusted && change.After.Status != change.Before.Status {
		e.logger.Info("Vendor trust changed",
			"vendor", change.After.Vendor,
			"from", change.Before.Status,
			"to", change.After.Status,
		)
	}

	r.transition(StateDecided)
	summary := r.summary(reason)
	summary.VoucherID = voucherID

	e.logger.Info("Audit decision",
		"trace_id", r.entry.TraceID,
		"approved", approved,
		"risk_score", summary.RiskScore,
		"audit_score", summary.AuditScore,
		"is_risky", summary.IsRisky,
	)

	if approved {
		return Approved{summary}, nil
	}
	return Rejected{summary}, nil
}

func buildVoucher(entry models.ProposedEntry, payable string, now time.Time) *models.Voucher {
	voucherType := strings.ToUpper(entry.Tag(models.TagVoucherType))
	switch voucherType {
	case models.VoucherTypePayment, models.VoucherTypeReceipt, models.VoucherTypeGeneral:
	default:
		voucherType = models.VoucherTypeGeneral
	}

	amount := entry.Amount.Round(2)
	return &models.Voucher{
		Type:      voucherType,
		TraceID:   entry.TraceID,
		Vendor:    entry.Vendor,
		Category:  entry.Category,
		Amount:    amount,
		Reference: entry.Tag(models.TagReference),
		Approved:  true,
		CreatedAt: now,
		Lines: []models.LedgerEntry{
			{
				AccountCode:  entry.Category,
				Direction:    models.Debit,
				Amount:       amount,
				Project:      entry.Tag(models.TagProject),
				Department:   entry.Tag(models.TagDepartment),
				Counterparty: entry.Tag(models.TagCounterparty),
			},
			{
				AccountCode:  payable,
				Direction:    models.Credit,
				Amount:       amount,
				Counterparty: entry.Tag(models.TagCounterparty),
			},
		},
	}
}

func (e *Engine) report(ctx context.Context, kind incident.Kind, traceID, message string, err error) {
	ev := incident.Event{
		Kind:    kind,
		Source:  "audit",
		TraceID: traceID,
		Message: message,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if rerr := e.reporter.Report(ctx, ev); rerr != nil {
		e.logger.Error("Failed to report incident", "error", rerr, "trace_id", traceID)
	}
}
