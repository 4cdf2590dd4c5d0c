package rules

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// Holder keeps the active rule set and swaps it on Reload.
// Readers take a snapshot with Current; a snapshot is never mutated.
type Holder struct {
	mu      sync.RWMutex
	current *Rules
	path    string
	logger  *slog.Logger
}

// NewHolder loads the rule file at path. An empty path uses Defaults.
func NewHolder(path string, logger *slog.Logger) (*Holder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Holder{path: path, logger: logger}

	r := Defaults()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		r = loaded
	}
	h.current = r
	return h, nil
}

// NewStaticHolder wraps a fixed rule set that Reload keeps as is.
func NewStaticHolder(r *Rules) *Holder {
	return &Holder{current: r, logger: slog.Default()}
}

// Current returns the active rule set.
func (h *Holder) Current() *Rules {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload re-reads the rule file. On error the active rules are kept.
func (h *Holder) Reload() error {
	if h.path == "" {
		return nil
	}

	r, err := Load(h.path)
	if err != nil {
		h.logger.Warn("Rules reload failed, keeping active rules", "path", h.path, "error", err)
		return err
	}

	h.mu.Lock()
	h.current = r
	h.mu.Unlock()

	h.logger.Info("Rules reloaded", "path", h.path)
	return nil
}

// Watch reloads the rule file on every signal received until ctx is done.
// onReload, if set, runs with the new rules after each successful reload.
func (h *Holder) Watch(ctx context.Context, signals <-chan os.Signal, onReload func(*Rules)) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			h.logger.Debug("Reloading rules", "signal", sig)
			if err := h.Reload(); err != nil {
				continue
			}
			if onReload != nil {
				onReload(h.Current())
			}
		}
	}
}
