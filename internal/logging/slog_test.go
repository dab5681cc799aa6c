package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newBufLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestSlogLogger_Levels(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		log   func(l *SlogLogger)
		level string
	}{
		{"debug", func(l *SlogLogger) { l.Debug(ctx, "m") }, "DEBUG"},
		{"info", func(l *SlogLogger) { l.Info(ctx, "m") }, "INFO"},
		{"warn", func(l *SlogLogger) { l.Warn(ctx, "m") }, "WARN"},
		{"error", func(l *SlogLogger) { l.Error(ctx, "m") }, "ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, buf := newBufLogger(t)
			tc.log(l)
			rec := lastRecord(t, buf)
			require.Equal(t, tc.level, rec["level"])
			require.Equal(t, "m", rec["msg"])
		})
	}
}

func TestSlogLogger_WithAddsAttrs(t *testing.T) {
	l, buf := newBufLogger(t)

	child := l.With("module", "worker")
	child.Info(context.Background(), "claimed", "job_id", "j1")

	rec := lastRecord(t, buf)
	require.Equal(t, "worker", rec["module"])
	require.Equal(t, "j1", rec["job_id"])
}
