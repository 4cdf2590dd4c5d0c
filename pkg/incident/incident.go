// Package incident is the operator-visible channel for critical events:
// consistency violations, exhausted retries and unexpected failures.
// Events are logged at error level and appended to a JSONL file.
package incident

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an incident.
type Kind string

const (
	KindConsistency Kind = "consistency"
	KindTransient   Kind = "transient"
	KindUnexpected  Kind = "unexpected"
)

// Event is one operator-facing incident.
type Event struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Kind    Kind      `json:"kind"`
	Source  string    `json:"source"`
	TraceID string    `json:"trace_id,omitempty"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
}

// Reporter receives incidents.
type Reporter interface {
	Report(ctx context.Context, e Event) error
}

// Log writes incidents to slog and, when a path is set, to a JSONL file.
type Log struct {
	path   string
	mu     sync.Mutex
	f      *os.File
	logger *slog.Logger
}

// NewLog opens or creates the JSONL file at path, creating its directory.
// An empty path only logs.
func NewLog(path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{path: path, logger: logger}
	if path == "" {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create incident log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open incident log: %w", err)
	}
	l.f = f
	return l, nil
}

// Report logs e as a critical event and appends it to the file.
func (l *Log) Report(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	l.logger.ErrorContext(ctx, e.Message,
		"critical", true,
		"incident_id", e.ID,
		"kind", string(e.Kind),
		"source", e.Source,
		"trace_id", e.TraceID,
		"error", e.Error,
	)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode incident: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.f.Write(data); err != nil {
		return fmt.Errorf("failed to write incident: %w", err)
	}
	return nil
}

// Recent returns up to n of the latest incidents, oldest first.
// Unparseable lines are skipped.
func (l *Log) Recent(n int) ([]Event, error) {
	if l.path == "" {
		return nil, nil
	}

	l.mu.Lock()
	if l.f != nil {
		_ = l.f.Sync()
	}
	l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read incident log: %w", err)
	}

	var events []Event
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

var _ Reporter = (*Log)(nil)
