// Package logger wraps zap behind the small structured interface used across the
// harvester. Every call carries a message, a machine-readable event name and a set
// of fields.
package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used by every package.
type Logger interface {
	DebugObj(msg, event string, fields map[string]any)
	InfoObj(msg, event string, fields map[string]any)
	WarnObj(msg, event string, fields map[string]any)
	ErrorObj(msg, event string, fields map[string]any)
	Sync() error
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a JSON zap logger at the given level (debug, info, warn, error).
func New(level string) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &zapLogger{z: z}, nil
}

// FromZap adapts an existing zap logger.
func FromZap(z *zap.Logger) Logger {
	if z == nil {
		return NopLogger{}
	}
	return &zapLogger{z: z}
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func (l *zapLogger) DebugObj(msg, event string, fields map[string]any) {
	l.z.Debug(msg, toFields(event, fields)...)
}

func (l *zapLogger) InfoObj(msg, event string, fields map[string]any) {
	l.z.Info(msg, toFields(event, fields)...)
}

func (l *zapLogger) WarnObj(msg, event string, fields map[string]any) {
	l.z.Warn(msg, toFields(event, fields)...)
}

func (l *zapLogger) ErrorObj(msg, event string, fields map[string]any) {
	l.z.Error(msg, toFields(event, fields)...)
}

func (l *zapLogger) Sync() error { return l.z.Sync() }

// toFields converts the field map into zap fields with stable key order.
func toFields(event string, fields map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	if event != "" {
		out = append(out, zap.String("event", event))
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) DebugObj(string, string, map[string]any) {}
func (NopLogger) InfoObj(string, string, map[string]any)  {}
func (NopLogger) WarnObj(string, string, map[string]any)  {}
func (NopLogger) ErrorObj(string, string, map[string]any) {}
func (NopLogger) Sync() error                             { return nil }

// Ensure returns log, or a NopLogger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return NopLogger{}
	}
	return log
}
