// Package obslog wires the core's correlation-ID/debug-flag context
// plumbing (internal/config) to a structured zap logger, in place of
// the teacher's fmt.Printf-based writeToLog.
package obslog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thisdougb/telemetryd/internal/config"
)

var (
	once   sync.Once
	logger *zap.Logger
)

func base() *zap.Logger {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
	return logger
}

// Info logs an informational message, tagging it with the correlation
// ID and elapsed time carried on ctx.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	base().Info(msg, withContext(ctx, fields)...)
}

// Error logs an error-level message.
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	base().Error(msg, withContext(ctx, fields)...)
}

// Warn logs a warning-level message.
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	base().Warn(msg, withContext(ctx, fields)...)
}

// Debug logs a debug-level message, gated by the TELEMETRYD_DEBUG
// correlation-context flag, matching the teacher's LogDebug gate.
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	if !config.GetContextDebug(ctx) {
		return
	}
	base().Debug(msg, withContext(ctx, fields)...)
}

func withContext(ctx context.Context, fields []zap.Field) []zap.Field {
	cid := config.GetContextCorrelationId(ctx)
	out := make([]zap.Field, 0, len(fields)+2)
	out = append(out, zap.String("cid", cid))
	if created := config.GetContextTimeCreated(ctx); created != -1 {
		elapsed := time.Since(time.Unix(created, 0))
		out = append(out, zap.Duration("elapsed", elapsed))
	}
	return append(out, fields...)
}

// Sync flushes any buffered log entries; call before process exit.
func Sync() error {
	return base().Sync()
}
