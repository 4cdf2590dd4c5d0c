// Package reconcile links externally observed cash movements (shadow
// entries) to draft vouchers in the ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/db"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/ledger"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// Ledger is the part of the ledger store the engine works against.
type Ledger interface {
	PendingShadowEntries(ctx context.Context) ([]models.ShadowEntry, error)
	Candidates(ctx context.Context, entry models.ShadowEntry, tolerance decimal.Decimal, window time.Duration) ([]models.Voucher, error)
	ClaimMatch(ctx context.Context, shadowID, voucherID string) ([]string, error)
	RecordConflict(ctx context.Context, shadowID string) error
	UnmatchedDrafts(ctx context.Context) ([]models.Voucher, error)
	AssignGroup(ctx context.Context, groupID string, voucherIDs []string) (int, error)
	VerifyChain(ctx context.Context) (ledger.ChainReport, error)
}

var _ Ledger = (*ledger.Store)(nil)

// Config holds the matching parameters.
type Config struct {
	Workers             int
	QueueSize           int
	SimilarityThreshold float64
	// UnclaimedBonus is added to candidates nobody claimed earlier in the
	// same sweep.
	UnclaimedBonus  float64
	AmountTolerance decimal.Decimal
	TimeWindow      time.Duration
	GroupWindow     time.Duration
}

// DefaultConfig returns the default matching parameters.
func DefaultConfig() Config {
	return Config{
		Workers:             4,
		QueueSize:           64,
		SimilarityThreshold: 0.8,
		UnclaimedBonus:      0.05,
		AmountTolerance:     decimal.NewFromFloat(0.01),
		TimeWindow:          7 * 24 * time.Hour,
		GroupWindow:         30 * time.Second,
	}
}

// Engine runs matching and grouping sweeps.
type Engine struct {
	ledger  Ledger
	history *db.SweepHistory
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHistory records every sweep in the sweep history table.
func WithHistory(history *db.SweepHistory) Option {
	return func(e *Engine) {
		e.history = history
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

// NewEngine creates a reconciliation engine.
func NewEngine(l Ledger, cfg Config, opts ...Option) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	e := &Engine{
		ledger: l,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SweepResult summarises one match sweep.
type SweepResult struct {
	Processed int
	Matched   int
	Unmatched int
	Conflicts int
	Failed    int
}

type workItem struct {
	entry      models.ShadowEntry
	candidates []models.Voucher
}

type sweepCounters struct {
	matched, unmatched, conflicts, failed atomic.Int64
}

// Sweep matches every pending shadow entry. Pending entries and their
// candidate sets are read before any worker starts; workers then claim
// matches independently. A lost claim is counted as a conflict and the entry
// stays pending for the next sweep. Errors on individual entries do not stop
// the sweep; they are joined into the returned error.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	started := e.now()

	pending, err := e.ledger.PendingShadowEntries(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to load pending shadow entries: %w", err)
	}

	items := make([]workItem, 0, len(pending))
	for _, entry := range pending {
		candidates, err := e.ledger.Candidates(ctx, entry, e.cfg.AmountTolerance, e.cfg.TimeWindow)
		if err != nil {
			return SweepResult{}, fmt.Errorf("failed to load candidates for %s: %w", entry.ID, err)
		}
		items = append(items, workItem{entry: entry, candidates: candidates})
	}

	e.logger.Debug("Match sweep snapshot", "pending", len(items), "workers", e.cfg.Workers)

	var (
		counters sweepCounters
		claimed  sync.Map
		mu       sync.Mutex
		failures []error
	)

	jobs := make(chan workItem, e.cfg.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, item := range items {
			select {
			case jobs <- item:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for item := range jobs {
				if err := e.match(gctx, item, &claimed, &counters); err != nil {
					counters.failed.Add(1)
					e.logger.Error("Match failed", "shadow_id", item.entry.ID, "error", err)
					mu.Lock()
					failures = append(failures, fmt.Errorf("shadow entry %s: %w", item.entry.ID, err))
					mu.Unlock()
				}
			}
			return nil
		})
	}

	waitErr := g.Wait()

	result := SweepResult{
		Processed: len(items),
		Matched:   int(counters.matched.Load()),
		Unmatched: int(counters.unmatched.Load()),
		Conflicts: int(counters.conflicts.Load()),
		Failed:    int(counters.failed.Load()),
	}

	e.logger.Info("Match sweep finished",
		"processed", result.Processed,
		"matched", result.Matched,
		"unmatched", result.Unmatched,
		"conflicts", result.Conflicts,
		"failed", result.Failed,
	)

	e.record(ctx, db.SweepRecord{
		Kind:       db.SweepMatch,
		StartedAt:  started,
		FinishedAt: e.now(),
		Processed:  result.Processed,
		Matched:    result.Matched,
		Conflicts:  result.Conflicts,
		Detail:     fmt.Sprintf("unmatched=%d failed=%d", result.Unmatched, result.Failed),
	})

	if waitErr != nil {
		failures = append(failures, waitErr)
	}
	return result, errors.Join(failures...)
}

func (e *Engine) match(ctx context.Context, item workItem, claimed *sync.Map, counters *sweepCounters) error {
	best, score, ok := e.best(item, claimed)
	if !ok {
		counters.unmatched.Add(1)
		e.logger.Debug("No candidate above threshold",
			"shadow_id", item.entry.ID,
			"keyword", item.entry.VendorKeyword,
			"candidates", len(item.candidates),
		)
		return nil
	}

	ids, err := e.ledger.ClaimMatch(ctx, item.entry.ID, best.ID)
	if errors.Is(err, ledger.ErrMatchConflict) {
		counters.conflicts.Add(1)
		e.logger.Warn("Match conflict, retrying next sweep",
			"shadow_id", item.entry.ID,
			"voucher_id", best.ID,
		)
		if rerr := e.ledger.RecordConflict(ctx, item.entry.ID); rerr != nil {
			e.logger.Error("Failed to record conflict", "shadow_id", item.entry.ID, "error", rerr)
		}
		return nil
	}
	if err != nil {
		return err
	}

	for _, id := range ids {
		claimed.Store(id, item.entry.ID)
	}
	counters.matched.Add(1)
	e.logger.Info("Shadow entry matched",
		"shadow_id", item.entry.ID,
		"voucher_id", best.ID,
		"group_size", len(ids),
		"score", score,
	)
	return nil
}

// best returns the highest scoring candidate whose similarity reaches the
// threshold. Ties go to the earlier candidate.
func (e *Engine) best(item workItem, claimed *sync.Map) (models.Voucher, float64, bool) {
	var (
		winner models.Voucher
		top    float64
		found  bool
	)
	for _, candidate := range item.candidates {
		similarity := Similarity(item.entry.VendorKeyword, candidate.Vendor)
		if similarity < e.cfg.SimilarityThreshold {
			continue
		}
		score := similarity
		if _, taken := claimed.Load(candidate.ID); !taken {
			score += e.cfg.UnclaimedBonus
		}
		if !found || score > top {
			winner, top, found = candidate, score, true
		}
	}
	return winner, top, found
}

func (e *Engine) record(ctx context.Context, record db.SweepRecord) {
	if e.history == nil {
		return
	}
	if err := e.history.RecordSweep(ctx, record); err != nil {
		e.logger.Warn("Failed to record sweep", "kind", record.Kind, "error", err)
	}
}
