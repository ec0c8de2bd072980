package ilog_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/ilog"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	ilog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() {
		ilog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})
	return &buf
}

func TestInfofFormatsAndLogs(t *testing.T) {
	buf := captureLogger(t)
	ilog.Infof(context.Background(), "dump started for table %d", 7)
	require.Contains(t, buf.String(), "dump started for table 7")
	require.Contains(t, buf.String(), "INFO")
}

func TestWarningfAndErrorfUseDistinctLevels(t *testing.T) {
	buf := captureLogger(t)
	ilog.Warningf(context.Background(), "re-enqueue collision for table %d", 1)
	require.Contains(t, buf.String(), "WARN")

	buf.Reset()
	ilog.Errorf(context.Background(), "dump failed: %s", "boom")
	require.Contains(t, buf.String(), "ERROR")
	require.Contains(t, buf.String(), "dump failed: boom")
}

func TestVEventfDispatchesByLevel(t *testing.T) {
	buf := captureLogger(t)
	ilog.VEventf(context.Background(), ilog.LevelError, "bad row %d", 5)
	require.Contains(t, buf.String(), "ERROR")
	require.Contains(t, buf.String(), "bad row 5")
}
