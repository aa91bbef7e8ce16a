package meshdata

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/meshdata/boundary"
)

// Logger wraps slog.Logger with container-specific context.
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

// WithBlock adds the mesh block id to the logger.
func (l *Logger) WithBlock(id int) *Logger {
	return &Logger{
		Logger: l.Logger.With("block", id),
	}
}

// WithStage adds the container stage name to the logger.
func (l *Logger) WithStage(stage string) *Logger {
	if stage == "" {
		return l
	}
	return &Logger{
		Logger: l.Logger.With("stage", stage),
	}
}

// WithPhase adds the exchange phase to the logger.
func (l *Logger) WithPhase(p boundary.Phase) *Logger {
	return &Logger{
		Logger: l.Logger.With("phase", p.String()),
	}
}

// LogAdd logs a variable registration.
func (l *Logger) LogAdd(ctx context.Context, label string, kind string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add variable failed",
			"label", label,
			"kind", kind,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "variable added",
			"label", label,
			"kind", kind,
		)
	}
}

// LogRemove logs a variable removal and the number of purged packs.
func (l *Logger) LogRemove(ctx context.Context, label string, purged int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "remove variable failed",
			"label", label,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "variable removed",
			"label", label,
			"purged_packs", purged,
		)
	}
}

// LogAllocate logs a sparse allocation or deallocation.
func (l *Logger) LogAllocate(ctx context.Context, label string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "allocate failed",
			"label", label,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "storage changed",
			"label", label,
			"bytes", bytes,
		)
	}
}

// LogPackBuild logs the materialization of a new pack.
func (l *Logger) LogPackBuild(ctx context.Context, kind string, key string, nvars int, duration time.Duration) {
	l.DebugContext(ctx, "pack built",
		"kind", kind,
		"key", key,
		"variables", nvars,
		"duration", duration,
	)
}

// LogExchange logs one boundary exchange step. Failures are logged at error
// level, everything else at debug level.
func (l *Logger) LogExchange(ctx context.Context, op string, status boundary.TaskStatus, err error) {
	if status == boundary.Fail {
		l.ErrorContext(ctx, "exchange failed",
			"op", op,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "exchange step",
			"op", op,
			"status", status.String(),
		)
	}
}

// LogCheckpoint logs a checkpoint save or load.
func (l *Logger) LogCheckpoint(ctx context.Context, op string, prefix string, nvars int, bytes int64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"op", op,
			"prefix", prefix,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "checkpoint done",
			"op", op,
			"prefix", prefix,
			"variables", nvars,
			"bytes", bytes,
			"duration", duration,
		)
	}
}
