// Package logging wraps log/slog with NanoIndex-specific structured
// fields, adapted line-for-line from the teacher's root logger.go
// (NewLogger/NewJSONLogger/NewTextLogger/NoopLogger), with the teacher's
// HNSW-specific helpers swapped for the store/cluster/search/agent
// vocabulary this module actually emits.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with NanoIndex-specific context.
type Logger struct {
	*slog.Logger
}

// New creates a Logger with the given handler. A nil handler defaults to
// a text handler on stderr at Info level.
func New(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSON creates a Logger that emits JSON-formatted records.
func NewJSON(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NewText creates a Logger that emits human-readable text records.
func NewText(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// Noop creates a Logger that discards everything.
func Noop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(1000)}))}
}

// orNoop returns l, or a Noop logger if l is nil, so core components never
// need a nil check before logging.
func orNoop(l *Logger) *Logger {
	if l == nil {
		return Noop()
	}
	return l
}

// Safe returns l or a no-op logger if l is nil. Core components should
// store the result of Safe(cfgLogger) rather than the raw pointer.
func Safe(l *Logger) *Logger { return orNoop(l) }

// LogAdd logs a DataStore.Add call.
func (l *Logger) LogAdd(ctx context.Context, n, total int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed", "batch", n, "error", err)
		return
	}
	l.DebugContext(ctx, "add completed", "inserted", n, "total", total)
}

// LogTrain logs an IVFIndex.Train call.
func (l *Logger) LogTrain(ctx context.Context, k, nTrained int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "train failed", "k", k, "error", err)
		return
	}
	l.InfoContext(ctx, "train completed", "k", k, "n_trained", nTrained)
}

// LogSearch logs a SearchService.Search call.
func (l *Logger) LogSearch(ctx context.Context, strategy string, k, results int, latencyMs float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed", "strategy", strategy, "k", k, "error", err)
		return
	}
	l.DebugContext(ctx, "search completed",
		"strategy", strategy, "k", k, "results", results, "latency_ms", latencyMs)
}

// LogAgentUpdate logs an AdaptiveAgent.Update call.
func (l *Logger) LogAgentUpdate(ctx context.Context, arm string, latencyMs, reward float64) {
	l.DebugContext(ctx, "agent update", "arm", arm, "latency_ms", latencyMs, "reward", reward)
}

// LogCheckpoint logs an AdaptiveAgent checkpoint attempt.
func (l *Logger) LogCheckpoint(ctx context.Context, path string, throttled bool, err error) {
	if err != nil {
		l.WarnContext(ctx, "agent checkpoint failed", "path", path, "error", err)
		return
	}
	if throttled {
		l.DebugContext(ctx, "agent checkpoint throttled", "path", path)
		return
	}
	l.DebugContext(ctx, "agent checkpoint written", "path", path)
}
