// Package gflog provides a thin, per-subsystem logging wrapper around the
// standard library's log/slog, mirroring the teacher's convention of tagging
// every log line with the emitting subsystem (e.g. "Pipeline::Fetch: ...").
package gflog

import (
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	base    = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	loggers = map[string]*slog.Logger{}
)

// For returns a logger tagged with subsystem, e.g. gflog.For("pipeline").
// Loggers are cached so repeated calls are cheap on a hot path.
func For(subsystem string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[subsystem]; ok {
		return l
	}
	l := base.With(slog.String("subsystem", subsystem))
	loggers[subsystem] = l
	return l
}

// SetLevel adjusts the minimum level emitted by every subsystem logger.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	loggers = map[string]*slog.Logger{}
}
