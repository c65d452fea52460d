package spikego

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with spikego-specific context.
// This provides structured logging with consistent field names.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithExtension adds an extension field to the logger.
func (l *Logger) WithExtension(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("extension", name),
	}
}

// WithSorter adds a sorter field to the logger.
func (l *Logger) WithSorter(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("sorter", name),
	}
}

// WithUnits adds a unit count field to the logger.
func (l *Logger) WithUnits(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("units", count),
	}
}

// LogCompute logs an extension computation.
func (l *Logger) LogCompute(ctx context.Context, extension string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "extension compute failed",
			"extension", extension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "extension compute completed",
			"extension", extension,
		)
	}
}

// LogSort logs a sorter run.
func (l *Logger) LogSort(ctx context.Context, sorter string, units int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sorting failed",
			"sorter", sorter,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "sorting completed",
			"sorter", sorter,
			"units", units,
		)
	}
}

// LogComparison logs a ground truth comparison.
func (l *Logger) LogComparison(ctx context.Context, gtUnits, testedUnits int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "comparison failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "comparison completed",
			"gt_units", gtUnits,
			"tested_units", testedUnits,
		)
	}
}

// LogSave logs an analyzer save operation.
func (l *Logger) LogSave(ctx context.Context, extensions int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "analyzer save failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "analyzer saved",
			"extensions", extensions,
		)
	}
}

// LogLoad logs an analyzer load operation.
func (l *Logger) LogLoad(ctx context.Context, extensions int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "analyzer load failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "analyzer loaded",
			"extensions", extensions,
		)
	}
}
