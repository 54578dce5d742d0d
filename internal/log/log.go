// Package log configures the zerolog logger shared by provctl and the roles.
package log

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the base logger.
type Config struct {
	Level   string    // "debug", "info", etc. Defaults to info.
	Output  io.Writer // defaults to os.Stderr
	Console bool      // human readable output instead of JSON
}

var (
	lock sync.Mutex
	base = New(Config{})
)

// New builds a logger from cfg without touching the global one.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}

	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Configure replaces the base logger.
func Configure(cfg Config) {
	lock.Lock()
	defer lock.Unlock()
	base = New(cfg)
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	lock.Lock()
	defer lock.Unlock()
	return base
}

// WithRun returns a context carrying a logger annotated with the run ID.
func WithRun(ctx context.Context, runID string) context.Context {
	l := FromContext(ctx).With().Str("run_id", runID).Logger()
	return l.WithContext(ctx)
}

// WithRole annotates the context's logger with the name of the role doing the work.
func WithRole(ctx context.Context, role string) context.Context {
	l := FromContext(ctx).With().Str("role", role).Logger()
	return l.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or the base logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	l := Base()
	return &l
}
