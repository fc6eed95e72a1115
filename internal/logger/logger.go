// Package logger builds the zap logger shared by every pass.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a zap logger at the given level: JSON in production, console
// output in development.
func New(level string, development bool) (*zap.Logger, error) {
	l, err := newConfig(level, development).Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return l, nil
}

// newConfig never samples: a pass is short and every rejected row is logged.
func newConfig(level string, development bool) zap.Config {
	cfg := zap.NewProductionConfig()
	if development {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.Sampling = nil
	return cfg
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Fallback is used until configuration has been read.
func Fallback() *zap.Logger {
	l, err := New("info", false)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
