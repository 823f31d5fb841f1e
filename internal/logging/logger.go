// Package logging provides structured logging configuration using log/slog.
//
// A sync run carries its run id in the context so every log entry of one run
// can be correlated, including entries from the maintenance jobs it triggers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// Setup configures the global slog logger based on level and format and
// returns it. Logs go to stderr; stdout is reserved for reports.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) *slog.Logger {
	logger := New(os.Stderr, level, format)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w without touching the global default.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// WithRunID stores the sync run id in ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextKey{}, runID)
}

// RunID returns the run id stored in ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// With returns log enriched with the run id in ctx. A nil log uses the
// default logger.
//
// Usage:
//
//	ctx = logging.WithRunID(ctx, uuid.NewString())
//	logging.With(ctx, log).Info("sync started")
func With(ctx context.Context, log *slog.Logger) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	if id := RunID(ctx); id != "" {
		log = log.With("run_id", id)
	}
	return log
}

// WithFields returns log enriched with the run id in ctx and additional
// structured fields.
//
// Usage:
//
//	stageLog := logging.WithFields(ctx, log, "stage", "members")
//	stageLog.Info("stage complete")
func WithFields(ctx context.Context, log *slog.Logger, args ...any) *slog.Logger {
	return With(ctx, log).With(args...)
}
