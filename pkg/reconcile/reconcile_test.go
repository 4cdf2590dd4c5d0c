package reconcile

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/db"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/incident"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/ledger"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	conn    *db.Connection
	store   *ledger.Store
	history *db.SweepHistory
	cfg     Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{
		conn:    conn,
		store:   ledger.NewStore(conn, ledger.WithClock(func() time.Time { return baseTime })),
		history: db.NewSweepHistory(conn),
		cfg:     DefaultConfig(),
	}
}

func (h *harness) engine(l Ledger) *Engine {
	if l == nil {
		l = h.store
	}
	return NewEngine(l, h.cfg, WithHistory(h.history), WithClock(func() time.Time { return baseTime }))
}

func (h *harness) draft(t *testing.T, vendor, amount, reference string, at time.Time) *models.Voucher {
	t.Helper()
	a := decimal.RequireFromString(amount)
	v := &models.Voucher{
		TraceID:   "trace-" + vendor + "-" + amount + "-" + at.Format(time.RFC3339),
		Vendor:    vendor,
		Category:  "6601-01",
		Amount:    a,
		Reference: reference,
		CreatedAt: at,
		Lines: []models.LedgerEntry{
			{AccountCode: "6601-01", Direction: models.Debit, Amount: a},
			{AccountCode: "2202", Direction: models.Credit, Amount: a},
		},
	}
	require.NoError(t, h.store.Append(context.Background(), v))
	return v
}

func (h *harness) shadow(t *testing.T, keyword, amount string, at time.Time) *models.ShadowEntry {
	t.Helper()
	entry := &models.ShadowEntry{
		Amount:        decimal.RequireFromString(amount),
		VendorKeyword: keyword,
		CreatedAt:     at,
	}
	require.NoError(t, h.store.AddShadowEntry(context.Background(), entry))
	return entry
}

func (h *harness) voucher(t *testing.T, id string) *models.Voucher {
	t.Helper()
	v, err := h.store.GetVoucher(context.Background(), id)
	require.NoError(t, err)
	return v
}

func (h *harness) shadowEntry(t *testing.T, id string) *models.ShadowEntry {
	t.Helper()
	e, err := h.store.GetShadowEntry(context.Background(), id)
	require.NoError(t, err)
	return e
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		atLeast float64
		below   float64
	}{
		{"keyword inside name", "Acme", "Acme Corp", 1, 0},
		{"full width and case", "ＡＣＭＥ", "acme", 1, 0},
		{"punctuation ignored", "Amazon.co.jp", "AMAZON CO JP", 1, 0},
		{"one typo", "Acme Corp", "Acme Crop", 0.75, 0},
		{"unrelated", "Acme", "Globex", 0, 0.8},
		{"empty", "", "Acme", 0, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.atLeast)
			if tt.below > 0 {
				assert.Less(t, got, tt.below)
			}
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestSweepMatchesByVendorSimilarity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v := h.draft(t, "Acme Corp", "99.90", "", baseTime)
	entry := h.shadow(t, "Acme", "99.90", baseTime.Add(2*time.Hour))

	result, err := h.engine(nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 1, Matched: 1}, result)

	got := h.shadowEntry(t, entry.ID)
	assert.Equal(t, models.ShadowMatched, got.Status)
	assert.Equal(t, v.ID, got.MatchedVoucherID)

	matched := h.voucher(t, v.ID)
	assert.Equal(t, models.MatchMatched, matched.MatchStatus)
	assert.Equal(t, entry.ID, matched.MatchedShadowID)
	assert.Equal(t, models.VoucherDraft, matched.Status)

	last, err := h.history.LastSweep(ctx, db.SweepMatch)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 1, last.Matched)
}

func TestSweepLeavesDissimilarEntriesPending(t *testing.T) {
	h := newHarness(t)

	h.draft(t, "Globex", "99.90", "", baseTime)
	entry := h.shadow(t, "Acme", "99.90", baseTime)
	far := h.shadow(t, "Globex", "99.90", baseTime.AddDate(0, 0, 8))

	result, err := h.engine(nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 2, result.Unmatched)
	assert.Equal(t, models.ShadowPending, h.shadowEntry(t, entry.ID).Status)
	assert.Equal(t, models.ShadowPending, h.shadowEntry(t, far.ID).Status)
}

func TestSweepPropagatesMatchToGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.draft(t, "Acme Corp", "60.00", "", baseTime)
	second := h.draft(t, "Acme Corp", "39.90", "", baseTime.Add(10*time.Second))
	loner := h.draft(t, "Acme Corp", "39.90", "", baseTime.Add(time.Hour))

	engine := h.engine(nil)
	grouped, err := engine.GroupSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, GroupResult{Drafts: 3, Groups: 1, Assigned: 2}, grouped)

	entry := h.shadow(t, "ACME", "99.90", baseTime.Add(time.Minute))
	result, err := engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)

	for _, id := range []string{first.ID, second.ID} {
		v := h.voucher(t, id)
		assert.Equal(t, models.MatchMatched, v.MatchStatus, id)
		assert.Equal(t, entry.ID, v.MatchedShadowID, id)
	}
	assert.Equal(t, models.MatchUnmatched, h.voucher(t, loner.ID).MatchStatus)
}

func TestGroupSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.draft(t, "Acme", "10", "INV-2026-0001", baseTime)
	b := h.draft(t, "Acme", "20", "", baseTime.Add(20*time.Second))
	c := h.draft(t, "Acme", "30", "", baseTime.Add(40*time.Second))
	d := h.draft(t, "Acme", "40", "inv 2026/0001", baseTime.Add(48*time.Hour))
	e := h.draft(t, "Acme", "50", "", baseTime.Add(96*time.Hour))

	engine := h.engine(nil)
	result, err := engine.GroupSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Groups)
	assert.Equal(t, 4, result.Assigned)

	group := h.voucher(t, a.ID).GroupID
	require.NotEmpty(t, group)
	for _, id := range []string{b.ID, c.ID, d.ID} {
		assert.Equal(t, group, h.voucher(t, id).GroupID, id)
	}
	assert.Empty(t, h.voucher(t, e.ID).GroupID)

	again, err := engine.GroupSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Assigned)

	late := h.draft(t, "Acme", "60", "", baseTime.Add(50*time.Second))
	joined, err := engine.GroupSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, joined.Assigned)
	assert.Equal(t, group, h.voucher(t, late.ID).GroupID)
}

func TestGroupSweepKeepsVendorsApart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acme := h.draft(t, "Acme Corp", "99.90", "", baseTime)
	globex := h.draft(t, "Globex Ltd", "500.00", "", baseTime.Add(5*time.Second))
	acmeAgain := h.draft(t, "ACME  corp", "12.00", "", baseTime.Add(8*time.Second))

	engine := h.engine(nil)
	grouped, err := engine.GroupSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, GroupResult{Drafts: 3, Groups: 1, Assigned: 2}, grouped)
	assert.Empty(t, h.voucher(t, globex.ID).GroupID)
	assert.Equal(t, h.voucher(t, acme.ID).GroupID, h.voucher(t, acmeAgain.ID).GroupID)

	acmeEntry := h.shadow(t, "Acme", "111.90", baseTime.Add(time.Minute))
	result, err := engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, models.ShadowMatched, h.shadowEntry(t, acmeEntry.ID).Status)
	assert.Equal(t, models.MatchUnmatched, h.voucher(t, globex.ID).MatchStatus)

	globexEntry := h.shadow(t, "Globex", "500.00", baseTime.Add(2*time.Minute))
	result, err = engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, models.ShadowMatched, h.shadowEntry(t, globexEntry.ID).Status)
	assert.Equal(t, models.MatchMatched, h.voucher(t, globex.ID).MatchStatus)
}

// conflictingLedger loses every claim.
type conflictingLedger struct {
	*ledger.Store
	mu     sync.Mutex
	claims int
}

func (c *conflictingLedger) ClaimMatch(context.Context, string, string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims++
	return nil, ledger.ErrMatchConflict
}

func TestSweepCountsLostClaims(t *testing.T) {
	h := newHarness(t)

	h.draft(t, "Acme Corp", "99.90", "", baseTime)
	entry := h.shadow(t, "Acme", "99.90", baseTime)

	l := &conflictingLedger{Store: h.store}
	result, err := h.engine(l).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 1, l.claims)
	assert.Equal(t, models.ShadowPending, h.shadowEntry(t, entry.ID).Status)

	var conflicts int
	require.NoError(t, h.conn.QueryRowContext(context.Background(),
		`SELECT conflicts FROM shadow_entries WHERE id = ?`, entry.ID).Scan(&conflicts))
	assert.Equal(t, 1, conflicts)
}

func TestSweepCompetingEntriesHaveSingleWinner(t *testing.T) {
	h := newHarness(t)
	h.cfg.Workers = 4

	v := h.draft(t, "Acme Corp", "99.90", "", baseTime)
	for i := 0; i < 6; i++ {
		h.shadow(t, "Acme", "99.90", baseTime.Add(time.Duration(i)*time.Minute))
	}

	result, err := h.engine(nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, result.Processed)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 5, result.Conflicts)

	pending, err := h.store.PendingShadowEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 5)
	assert.Equal(t, models.MatchMatched, h.voucher(t, v.ID).MatchStatus)
}

func TestSweepSmallQueue(t *testing.T) {
	h := newHarness(t)
	h.cfg.Workers = 2
	h.cfg.QueueSize = 1

	for i := 0; i < 5; i++ {
		at := baseTime.Add(time.Duration(i) * time.Hour)
		amount := decimal.NewFromInt(int64(100 + i)).StringFixed(2)
		h.draft(t, "Acme Corp", amount, "", at)
		h.shadow(t, "Acme", amount, at)
	}

	result, err := h.engine(nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Matched)
}

type recordingReporter struct {
	mu     sync.Mutex
	events []incident.Event
}

func (r *recordingReporter) Report(_ context.Context, e incident.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func TestRunnerRunOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.draft(t, "Acme Corp", "99.90", "", baseTime)
	h.shadow(t, "Acme", "99.90", baseTime)

	reporter := &recordingReporter{}
	runner := NewRunner(h.engine(nil), reporter, time.Minute)

	report, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Match.Matched)
	assert.True(t, report.Chain.Valid)
	assert.Equal(t, 1, report.Chain.Checked)
	assert.Empty(t, reporter.events)

	for _, kind := range []db.SweepKind{db.SweepGroup, db.SweepMatch, db.SweepVerify} {
		last, err := h.history.LastSweep(ctx, kind)
		require.NoError(t, err)
		assert.NotNil(t, last, kind)
	}
}

func TestRunnerReportsChainDivergence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.draft(t, "Acme", "10", "", baseTime)
	second := h.draft(t, "Acme", "20", "", baseTime.Add(time.Hour))
	_, err := h.conn.ExecContext(ctx, `UPDATE vouchers SET amount = '25' WHERE id = ?`, second.ID)
	require.NoError(t, err)

	reporter := &recordingReporter{}
	report, err := NewRunner(h.engine(nil), reporter, time.Minute).RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, report.Chain.Valid)
	assert.Equal(t, 1, report.Chain.FirstDivergence)

	require.Len(t, reporter.events, 1)
	assert.Equal(t, incident.KindConsistency, reporter.events[0].Kind)
}

func TestRunnerRun(t *testing.T) {
	h := newHarness(t)

	assert.Error(t, NewRunner(h.engine(nil), nil, 0).Run(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, NewRunner(h.engine(nil), &recordingReporter{}, time.Hour).Run(ctx))
}
