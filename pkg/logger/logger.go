// Package logger provides basic logging functionalities.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines a simple interface for logging.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = newZap(level)
	std   Logger = facade(base)
)

// ParseLevel maps "debug", "info", "warn", "error", "fatal" to a zap level.
// Unknown strings fall back to info.
func ParseLevel(logLevel string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(logLevel)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func newZap(lvl zap.AtomicLevel) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		lvl,
	)
	return zap.New(core, zap.AddCaller())
}

// facade skips the package-level wrapper frame so callers show up in the caller field.
func facade(l *zap.Logger) Logger {
	return l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// NewLogger creates a standalone Logger at the given level.
// loglevel could be "debug", "info", "warn", "error", "fatal"
func NewLogger(logLevel string) Logger {
	return newZap(zap.NewAtomicLevelAt(ParseLevel(logLevel))).Sugar()
}

// SetGlobalLogLevel reconfigures the global std logger's level.
func SetGlobalLogLevel(logLevel string) {
	level.SetLevel(ParseLevel(logLevel))
}

// L returns the structured logger behind the global facade, for components
// that take a *zap.Logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Replace swaps the global logger. Used by tests to capture output.
func Replace(l *zap.Logger) func() {
	mu.Lock()
	prevBase, prevStd := base, std
	base = l
	std = facade(l)
	mu.Unlock()
	return func() {
		mu.Lock()
		base, std = prevBase, prevStd
		mu.Unlock()
	}
}

func get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// Sync flushes buffered log entries.
func Sync() {
	_ = L().Sync()
}

// Debug logs a debug message using the global std logger.
func Debug(args ...interface{}) {
	get().Debug(args...)
}

// Debugf logs a debug message with formatting.
func Debugf(format string, args ...interface{}) {
	get().Debugf(format, args...)
}

// Info logs an informational message using the global std logger.
func Info(args ...interface{}) {
	get().Info(args...)
}

// Infof logs an informational message with formatting.
func Infof(format string, args ...interface{}) {
	get().Infof(format, args...)
}

// Warn logs a warning.
func Warn(args ...interface{}) {
	get().Warn(args...)
}

// Warnf logs a warning with formatting.
func Warnf(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

// Error logs an error message.
func Error(args ...interface{}) {
	get().Error(args...)
}

// Errorf logs an error message with formatting.
func Errorf(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

// Fatal logs a fatal error message and exits.
func Fatal(args ...interface{}) {
	get().Fatal(args...)
}

// Fatalf logs a fatal error message with formatting and exits.
func Fatalf(format string, args ...interface{}) {
	get().Fatalf(format, args...)
}
