package kmertab

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with the fields the count table reports.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, a text handler writing to stderr at info level is used.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewJSONLogger creates a Logger that writes JSON records to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// LogDump logs the outcome of writing a table dump.
func (l *Logger) LogDump(ctx context.Context, path string, k int, entries uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "dump failed",
			"path", path,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "dumped the count table",
		"path", path,
		"k", k,
		"entries", entries,
	)
}

// LogRestore logs the outcome of reading a table dump.
func (l *Logger) LogRestore(ctx context.Context, path string, t *Table, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"path", path,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "restored the count table",
		"path", path,
		"k", t.K(),
		"prefix_bits", t.PrefixBits(),
		"entries", t.Len(),
	)
}
