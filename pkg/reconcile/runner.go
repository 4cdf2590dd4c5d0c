package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/db"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/incident"
)

// Runner drives the periodic sweeps: grouping, matching, then chain
// verification.
type Runner struct {
	engine   *Engine
	reporter incident.Reporter
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a runner that sweeps every interval.
func NewRunner(engine *Engine, reporter incident.Reporter, interval time.Duration) *Runner {
	return &Runner{
		engine:   engine,
		reporter: reporter,
		interval: interval,
		logger:   engine.logger,
	}
}

// Report is the outcome of one runner cycle.
type Report struct {
	Group GroupResult
	Match SweepResult
	Chain ChainStatus
}

// ChainStatus is the chain verification part of a cycle.
type ChainStatus struct {
	Valid           bool
	Checked         int
	FirstDivergence int
}

// RunOnce runs one grouping sweep, one match sweep and one chain
// verification. A chain divergence is reported on the operator channel but
// does not fail the cycle.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	group, err := r.engine.GroupSweep(ctx)
	if err != nil {
		r.reportError(ctx, "Group sweep failed", err)
		return report, err
	}
	report.Group = group

	match, err := r.engine.Sweep(ctx)
	report.Match = match
	if err != nil {
		r.reportError(ctx, "Match sweep failed", err)
		return report, err
	}

	chain, err := r.verify(ctx)
	report.Chain = chain
	if err != nil {
		r.reportError(ctx, "Chain verification failed", err)
		return report, err
	}
	return report, nil
}

func (r *Runner) verify(ctx context.Context) (ChainStatus, error) {
	started := r.engine.now()
	chain, err := r.engine.ledger.VerifyChain(ctx)
	if err != nil {
		return ChainStatus{}, err
	}
	status := ChainStatus{Valid: chain.Valid, Checked: chain.Checked, FirstDivergence: chain.FirstDivergence}

	detail := "intact"
	if cerr := chain.Err(); cerr != nil {
		detail = cerr.Error()
		r.report(ctx, incident.KindConsistency, "Ledger chain divergence detected", cerr)
	}
	r.engine.record(ctx, db.SweepRecord{
		Kind:       db.SweepVerify,
		StartedAt:  started,
		FinishedAt: r.engine.now(),
		Processed:  chain.Checked,
		Detail:     detail,
	})
	return status, nil
}

// Run sweeps immediately and then every interval until ctx is cancelled.
// Failed cycles are reported and retried on the next tick.
func (r *Runner) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("invalid sweep interval %s", r.interval)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("Sweep cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Reconciliation runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) reportError(ctx context.Context, message string, err error) {
	if ctx.Err() != nil {
		return
	}
	kind := incident.KindUnexpected
	if errors.Is(err, db.ErrTransient) {
		kind = incident.KindTransient
	}
	r.report(ctx, kind, message, err)
}

func (r *Runner) report(ctx context.Context, kind incident.Kind, message string, err error) {
	if r.reporter == nil {
		r.logger.Error(message, "critical", true, "error", err)
		return
	}
	ev := incident.Event{Kind: kind, Source: "reconcile", Message: message}
	if err != nil {
		ev.Error = err.Error()
	}
	if rerr := r.reporter.Report(ctx, ev); rerr != nil {
		r.logger.Error("Failed to report incident", "error", rerr)
	}
}
