// Package logging provides a common interface and setup for application-wide logging.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger defines the interface for logging within the application.
// This abstraction allows for different logger implementations while
// maintaining consistent logging conventions throughout the codebase.
type Logger interface {
	// Debug logs a debug-level message.
	Debug(msg string, args ...any)

	// Info logs an info-level message.
	Info(msg string, args ...any)

	// Warn logs a warning-level message.
	Warn(msg string, args ...any)

	// Error logs an error-level message.
	Error(msg string, args ...any)

	// WithContext returns a logger with context values.
	WithContext(ctx context.Context) Logger

	// WithField returns a logger with an additional field.
	WithField(key string, value any) Logger
}

// Level is a logging verbosity level, ordered from most to least verbose.
type Level int

const (
	LevelTrace Level = iota - 1
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelTrace:
		return slog.LevelDebug - 4
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NoopLogger implements Logger but does nothing.
// Used as a fallback when no logger is provided.
type NoopLogger struct{}

func (l *NoopLogger) Debug(_ string, _ ...any)              {}
func (l *NoopLogger) Info(_ string, _ ...any)               {}
func (l *NoopLogger) Warn(_ string, _ ...any)               {}
func (l *NoopLogger) Error(_ string, _ ...any)              {}
func (l *NoopLogger) WithContext(_ context.Context) Logger  { return l }
func (l *NoopLogger) WithField(_ string, _ any) Logger      { return l }

// Global singleton instance of NoopLogger.
var noop = &NoopLogger{}

// GetNoopLogger returns the no-op logger instance.
func GetNoopLogger() Logger {
	return noop
}

// slogLogger adapts log/slog to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) WithContext(ctx context.Context) Logger {
	return s
}

func (s *slogLogger) WithField(key string, value any) Logger {
	return &slogLogger{l: s.l.With(key, value)}
}

var (
	mu            sync.Mutex
	levelVar      = new(slog.LevelVar)
	defaultLogger Logger = noop
)

// InitLogging configures the package-wide logger to write JSON-formatted
// records at or above level to w. Safe to call more than once (e.g. from
// tests); the most recent call wins.
func InitLogging(level Level, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	levelVar.Set(level.slogLevel())
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelVar})
	defaultLogger = &slogLogger{l: slog.New(handler)}
}

// SetLevel adjusts the verbosity of the logger installed by InitLogging.
// The package's init installs a stderr-backed logger through InitLogging,
// so SetLevel always takes effect on the current slog handler.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	levelVar.Set(level.slogLevel())
}

// IsDebugEnabled reports whether the current level would emit DEBUG records.
func IsDebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return levelVar.Level() <= slog.LevelDebug
}

// SetDefaultLogger installs a custom Logger implementation, bypassing slog.
func SetDefaultLogger(logger Logger) {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		defaultLogger = logger
	}
}

// GetLogger returns a logger scoped to the named component.
func GetLogger(name string) Logger {
	mu.Lock()
	dl := defaultLogger
	mu.Unlock()
	return dl.WithField("component", name)
}

func init() {
	InitLogging(LevelInfo, os.Stderr)
}
