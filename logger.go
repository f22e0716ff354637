package runindex

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with runindex-specific helpers so that
// operations log with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRun adds a run identifier field to the logger.
func (l *Logger) WithRun(run string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run", run),
	}
}

// LogScan logs the outcome of a shard scan.
func (l *Logger) LogScan(ctx context.Context, shards, unreadable int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "scan failed",
			"error", err,
		)
	} else if unreadable > 0 {
		l.WarnContext(ctx, "scan completed with unreadable shards",
			"shards", shards,
			"unreadable", unreadable,
		)
	} else {
		l.DebugContext(ctx, "scan completed",
			"shards", shards,
		)
	}
}

// LogValidate logs the outcome of cross-shard validation.
func (l *Logger) LogValidate(ctx context.Context, sources, warnings int) {
	if warnings > 0 {
		l.WarnContext(ctx, "validation completed with warnings",
			"sources", sources,
			"warnings", warnings,
		)
	} else {
		l.DebugContext(ctx, "validation completed",
			"sources", sources,
		)
	}
}

// LogIndex logs the construction of the canonical index.
func (l *Logger) LogIndex(ctx context.Context, trains int, records uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index built",
			"trains", trains,
			"records", records,
		)
	}
}
