// Package logging owns the process-wide slog logger: JSON to stdout, and to a
// rotating file when a path is configured.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

var (
	mu   sync.Mutex
	base *slog.Logger
)

// Init configures the global logger once; later calls return the existing one.
// An empty filePath logs to stdout only.
func Init(component, filePath, level string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		return base
	}

	var w io.Writer = os.Stdout
	if filePath != "" {
		_ = os.MkdirAll(filepath.Dir(filePath), 0o755)
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		})
	}
	base = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})).
		With("component", component)
	slog.SetDefault(base)
	return base
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Base returns the global logger, falling back to slog.Default before Init.
func Base() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		return slog.Default()
	}
	return base
}

// New returns a child logger sharing the global handler.
func New(component string) *slog.Logger {
	return Base().With("component", component)
}

func WithCtx(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromCtx fetches the request-scoped logger or falls back to the global one.
func FromCtx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return Base()
}
