// Package logger provides structured, leveled logging backed by zap.
//
// Call sites use the same key/value style as log/slog:
//
//	log.Info("lesson generated", "lesson_id", id, "fallback", false)
//
// A nil *Logger is valid and discards everything.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap SugaredLogger.
type Logger struct {
	sugar *zap.SugaredLogger
}

var nop = zap.NewNop().Sugar()

// New builds a logger for the given level ("debug", "info", "warn", "error")
// and format ("json" or "console").
func New(level, format string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console", "text":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return &Logger{sugar: z.Sugar()}, nil
}

// NewWithCore wraps an existing zap core. Mostly useful in tests with zaptest/observer.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{sugar: zap.New(core).Sugar()}
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return &Logger{sugar: nop}
}

func (l *Logger) s() *zap.SugaredLogger {
	if l == nil || l.sugar == nil {
		return nop
	}
	return l.sugar
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.s().Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.s().Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.s().Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.s().Errorw(msg, keysAndValues...)
}

// With returns a child logger that always includes the given fields.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{sugar: l.s().With(keysAndValues...)}
}

// Zap exposes the underlying structured logger, e.g. for zap.ReplaceGlobals.
func (l *Logger) Zap() *zap.Logger {
	return l.s().Desugar()
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() {
	_ = l.s().Sync()
}
