// Package logging provides the zap-backed implementation of types.Logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/magickw/linkDAO-sub004/internal/types"
)

// New builds a structured logger at the given level ("debug", "info",
// "warn", "error") and format ("json" or "console").
func New(level, format string) (types.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{zap: zl}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() types.Logger {
	return &zapLogger{zap: zap.NewNop()}
}

type zapLogger struct {
	zap *zap.Logger
}

func (z *zapLogger) Debug(msg string, fields ...any) {
	z.zap.Debug(msg, toZapFields(fields)...)
}

func (z *zapLogger) Info(msg string, fields ...any) {
	z.zap.Info(msg, toZapFields(fields)...)
}

func (z *zapLogger) Warn(msg string, fields ...any) {
	z.zap.Warn(msg, toZapFields(fields)...)
}

func (z *zapLogger) Error(msg string, fields ...any) {
	z.zap.Error(msg, toZapFields(fields)...)
}

func (z *zapLogger) With(fields ...any) types.Logger {
	return &zapLogger{zap: z.zap.With(toZapFields(fields)...)}
}

// toZapFields converts alternating key/value pairs into zap fields.
// Keys that are not strings are skipped.
func toZapFields(fields []any) []zap.Field {
	var zapFields []zap.Field
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			zapFields = append(zapFields, zap.Any(key, fields[i+1]))
		}
	}
	return zapFields
}
