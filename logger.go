package bufcache

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with bufcache-specific context.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000),
		})),
	}
}

// WithDevice adds a device field to the logger.
func (l *Logger) WithDevice(dev DevID) *Logger {
	return &Logger{
		Logger: l.Logger.With("dev", dev.String()),
	}
}

// LogEviction logs the recycling of a resident slot.
func (l *Logger) LogEviction(ctx context.Context, victim BlockID, dirty bool) {
	if dirty {
		l.WarnContext(ctx, "dirty block discarded on eviction",
			"dev", victim.Dev.String(),
			"block", victim.Block,
		)
		return
	}
	l.DebugContext(ctx, "block evicted",
		"dev", victim.Dev.String(),
		"block", victim.Block,
	)
}

// LogIOError logs a failed device transfer.
func (l *Logger) LogIOError(ctx context.Context, op string, id BlockID, err error) {
	l.ErrorContext(ctx, "device i/o failed",
		"op", op,
		"dev", id.Dev.String(),
		"block", id.Block,
		"error", err,
	)
}

// LogWriteBack logs the outcome of a write-back run.
func (l *Logger) LogWriteBack(ctx context.Context, dev DevID, first BlockNo, blocks, written int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "write-back failed",
			"dev", dev.String(),
			"first", first,
			"blocks", blocks,
			"written", written,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "write-back completed",
			"dev", dev.String(),
			"first", first,
			"blocks", blocks,
		)
	}
}

// LogFlush logs a device flush.
func (l *Logger) LogFlush(ctx context.Context, dev DevID, written, remaining, invalidated int) {
	if remaining > 0 || invalidated > 0 {
		l.WarnContext(ctx, "flush incomplete",
			"dev", dev.String(),
			"written", written,
			"remaining", remaining,
			"invalidated", invalidated,
		)
	} else {
		l.DebugContext(ctx, "flush completed",
			"dev", dev.String(),
			"written", written,
		)
	}
}

// LogInvalidate logs a device invalidation.
func (l *Logger) LogInvalidate(ctx context.Context, dev DevID, slots int) {
	l.InfoContext(ctx, "device invalidated",
		"dev", dev.String(),
		"slots", slots,
	)
}
