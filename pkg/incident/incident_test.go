package incident

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendsAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops", "incidents.jsonl")
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	l, err := NewLog(path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	ctx := context.Background()
	for _, msg := range []string{"first", "second", "third"} {
		require.NoError(t, l.Report(ctx, Event{Kind: KindConsistency, Source: "test", Message: msg}))
	}

	events, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].Message)
	assert.Equal(t, "third", events[1].Message)
	assert.NotEmpty(t, events[1].ID)
	assert.False(t, events[1].Time.IsZero())

	assert.Contains(t, buf.String(), "critical=true")
	assert.Contains(t, buf.String(), "kind=consistency")
}

func TestLogSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0644))

	l, err := NewLog(path, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, l.Report(context.Background(), Event{Kind: KindTransient, Message: "retry budget exhausted"}))

	events, err := l.Recent(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, KindTransient, events[0].Kind)
}

func TestLogWithoutPathOnlyLogs(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLog("", slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	require.NoError(t, l.Report(context.Background(), Event{Kind: KindUnexpected, Message: "boom"}))
	events, err := l.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Contains(t, buf.String(), "boom")
	assert.NoError(t, l.Close())
}
