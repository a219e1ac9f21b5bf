package logutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// New builds the process logger. format is "json" or "text"; level is one of
// debug, info, warn, error and falls back to info when unrecognised.
func New(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a config string onto a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Used as the default when
// callers do not supply one.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RedactToken keeps the first few characters of a bearer value so log lines
// can be correlated without leaking the credential.
func RedactToken(tok string) string {
	const keep = 6
	if len(tok) <= keep {
		return "***"
	}
	return tok[:keep] + "***"
}

// NewTimingLogger returns a closure that logs a debug message with duration when called.
// Pass in the logger, a start time, a message, and any initial fields.
func NewTimingLogger(logger *slog.Logger, start time.Time, msg string, initialFields ...any) func() {
	return func() {
		elapsed := time.Since(start)
		finalFields := append(initialFields, "duration", elapsed.String())
		logger.Debug(msg, finalFields...)
	}
}

// LogAndWrapErr logs an error with context fields and wraps it with a message.
// It returns a wrapped error (with %w) so errors.Is / errors.As still work.
func LogAndWrapErr(logger *slog.Logger, msg string, err error, fields ...any) error {
	if err == nil {
		return nil
	}
	allFields := append(fields, "err", err)
	logger.Error(msg, allFields...)
	return fmt.Errorf("%s: %w", msg, err)
}

// DebugAndWrapErr is LogAndWrapErr at debug level, for failures that are
// expected in normal operation such as a missing row.
func DebugAndWrapErr(logger *slog.Logger, msg string, err error, fields ...any) error {
	if err == nil {
		return nil
	}
	allFields := append(fields, "err", err)
	logger.Debug(msg, allFields...)
	return fmt.Errorf("%s: %w", msg, err)
}

// LogSlowOperation logs a warning if an operation takes longer than the threshold
func LogSlowOperation(ctx context.Context, logger *slog.Logger, threshold time.Duration, msg string, fn func(), fields ...any) {
	start := time.Now()
	fn()
	elapsed := time.Since(start)

	finalFields := append(fields, "duration", elapsed.String(), "threshold", threshold.String())
	if elapsed > threshold {
		logger.WarnContext(ctx, msg+" was slow", finalFields...)
		return
	}
	logger.DebugContext(ctx, msg+" completed", finalFields...)
}
