// Package logger wraps charmbracelet/log behind a small interface so the
// engine never depends on a package-level global: every subsystem pulls its
// logger from a context.Context, and tests can swap in a disabled logger
// without touching call sites.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	charm "github.com/charmbracelet/log"
)

// LogLevel mirrors charmbracelet/log's levels plus a Disabled level used by
// tests that want to silence output entirely.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	DisabledLevel
)

func (l LogLevel) charmLevel() charm.Level {
	switch l {
	case DebugLevel:
		return charm.DebugLevel
	case WarnLevel:
		return charm.WarnLevel
	case ErrorLevel:
		return charm.ErrorLevel
	default:
		return charm.InfoLevel
	}
}

// Config controls how a Logger renders output.
type Config struct {
	Level      LogLevel
	Output     io.Writer
	JSON       bool
	AddSource  bool
	TimeFormat string
}

// Logger is the interface every engine subsystem logs through.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

type charmLogger struct {
	l        *charm.Logger
	disabled bool
}

// New builds a Logger from Config, defaulting Output to os.Stderr and
// TimeFormat to time.Kitchen when unset.
func New(cfg Config) Logger {
	if cfg.Level == DisabledLevel {
		return &charmLogger{disabled: true}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := charm.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		ReportCaller:    cfg.AddSource,
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.Kitchen
	}
	if cfg.JSON {
		opts.Formatter = charm.JSONFormatter
	}
	l := charm.NewWithOptions(out, opts)
	l.SetLevel(cfg.Level.charmLevel())
	return &charmLogger{l: l}
}

func (c *charmLogger) Debug(msg string, keyvals ...any) {
	if c.disabled {
		return
	}
	c.l.Debug(msg, keyvals...)
}

func (c *charmLogger) Info(msg string, keyvals ...any) {
	if c.disabled {
		return
	}
	c.l.Info(msg, keyvals...)
}

func (c *charmLogger) Warn(msg string, keyvals ...any) {
	if c.disabled {
		return
	}
	c.l.Warn(msg, keyvals...)
}

func (c *charmLogger) Error(msg string, keyvals ...any) {
	if c.disabled {
		return
	}
	c.l.Error(msg, keyvals...)
}

func (c *charmLogger) With(keyvals ...any) Logger {
	if c.disabled {
		return c
	}
	return &charmLogger{l: c.l.With(keyvals...)}
}

var defaultLogger = New(Config{Level: InfoLevel})

// SetDefault replaces the process-wide fallback logger returned by
// FromContext when no logger has been attached to the context.
func SetDefault(l Logger) {
	defaultLogger = l
}

type ctxKey struct{}

// LoggerCtxKey identifies the context value slot used to carry a Logger.
var LoggerCtxKey = ctxKey{}

// ContextWithLogger returns a copy of ctx carrying l.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, LoggerCtxKey, l)
}

// FromContext returns the Logger attached to ctx, or the process-wide
// default if none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(LoggerCtxKey).(Logger); ok && l != nil {
		return l
	}
	return defaultLogger
}
