package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestConnection(t *testing.T) *Connection {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func fastPolicy(attempts uint) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Jitter:          0.5,
	}
}

func TestOpenCreatesSchema(t *testing.T) {
	conn := openTestConnection(t)

	for _, table := range []string{"accounts", "vouchers", "voucher_lines", "chain_blocks", "account_balances", "vendor_trust", "shadow_entries", "sweep_history", "engine_metadata"} {
		var name string
		err := conn.QueryRowContext(context.Background(),
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	conn := openTestConnection(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := conn.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO accounts (code, name) VALUES ('1001-01', 'Cash')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, IsBusy(errors.New("plain")))
	assert.False(t, IsBusy(nil))
}

func TestRetryPolicyDo(t *testing.T) {
	ctx := context.Background()
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}

	t.Run("recovers after contention", func(t *testing.T) {
		calls := 0
		err := fastPolicy(5).Do(ctx, nil, func() error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausted budget is transient", func(t *testing.T) {
		calls := 0
		err := fastPolicy(3).Do(ctx, nil, func() error {
			calls++
			return busy
		})
		require.ErrorIs(t, err, ErrTransient)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := fastPolicy(5).Do(ctx, nil, func() error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.False(t, errors.Is(err, ErrTransient))
		assert.Equal(t, 1, calls)
	})
}

func TestSweepHistory(t *testing.T) {
	conn := openTestConnection(t)
	ctx := context.Background()
	history := NewSweepHistory(conn)

	last, err := history.LastSweep(ctx, SweepMatch)
	require.NoError(t, err)
	assert.Nil(t, last)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, history.RecordSweep(ctx, SweepRecord{Kind: SweepMatch, StartedAt: start, FinishedAt: start.Add(time.Second), Processed: 4, Matched: 3, Conflicts: 1}))
	require.NoError(t, history.RecordSweep(ctx, SweepRecord{Kind: SweepMatch, StartedAt: start.Add(time.Minute), FinishedAt: start.Add(time.Minute), Processed: 1}))

	last, err = history.LastSweep(ctx, SweepMatch)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 1, last.Processed)
	assert.Equal(t, start.Add(time.Minute), last.StartedAt)

	stats, err := history.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sweeps)

	require.NoError(t, history.SetMetadata(ctx, "last_verify", "ok"))
	require.NoError(t, history.SetMetadata(ctx, "last_verify", "divergence@3"))
	value, err := history.GetMetadata(ctx, "last_verify")
	require.NoError(t, err)
	assert.Equal(t, "divergence@3", value)
}
