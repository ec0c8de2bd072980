// Package ilog is a small, context-first, printf-style logging façade in
// the shape of the calling convention used throughout the teacher corpus
// (every catalog-adjacent call site takes a context.Context first and logs
// through a package-level façade rather than a per-type logger). It is
// backed by log/slog; see DESIGN.md for why this package is the one
// stdlib-only ambient concern in this module.
package ilog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Level mirrors the verbosity-gated events the teacher's logging façade
// exposes (VEventf), without depending on its channel/sink machinery.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// SetDefault replaces the package-level logger. Tests may install a
// discard handler to keep output quiet.
func SetDefault(l *slog.Logger) {
	defaultLogger = l
}

// Infof logs an informational event, e.g. "dump started for table %d".
func Infof(ctx context.Context, format string, args ...interface{}) {
	log(ctx, slog.LevelInfo, format, args...)
}

// Warningf logs a recoverable anomaly, e.g. a dump re-enqueue collision.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	log(ctx, slog.LevelWarn, format, args...)
}

// Errorf logs a surfaced failure before it propagates to the caller.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	log(ctx, slog.LevelError, format, args...)
}

// VEventf logs at the given level by dispatching to Infof, Warningf or
// Errorf; it applies no verbosity gating of its own.
func VEventf(ctx context.Context, level Level, format string, args ...interface{}) {
	switch level {
	case LevelWarning:
		Warningf(ctx, format, args...)
	case LevelError:
		Errorf(ctx, format, args...)
	default:
		Infof(ctx, format, args...)
	}
}

func log(ctx context.Context, level slog.Level, format string, args ...interface{}) {
	defaultLogger.Log(ctx, level, fmt.Sprintf(format, args...))
}
