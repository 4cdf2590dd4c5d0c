package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mattn/go-sqlite3"
)

// ErrTransient is returned when lock contention outlasts the retry budget.
var ErrTransient = errors.New("transient store error")

// RetryPolicy bounds the exponential backoff applied to lock contention.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Jitter is the backoff randomization factor in [0,1).
	Jitter float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     time.Second,
		Jitter:          0.5,
	}
}

// IsBusy reports whether err is a SQLite lock contention error.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// Do runs op, retrying lock contention with exponential backoff and jitter.
// Any other error is returned immediately. Exhausting the budget yields an
// error wrapping ErrTransient.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, op func() error) error {
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.RandomizationFactor = p.Jitter

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := op()
		switch {
		case err == nil:
			return struct{}{}, nil
		case IsBusy(err):
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("Store contention, retrying", "attempt", attempts, "next_in", next, "error", err)
		}),
	)
	if err != nil && IsBusy(err) {
		return fmt.Errorf("%w: gave up after %d attempts: %v", ErrTransient, attempts, err)
	}
	return err
}
