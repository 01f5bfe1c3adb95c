package logging

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lightsparkdev/spark-wallet/common/keys"
)

type loggerContextKey string

const loggerKey = loggerContextKey("logger")

// Inject the logger into the context. This should be called at the start of a
// wallet operation or background job.
func Inject(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLoggerFromContext returns the logger stored in ctx. If no logger is found,
// returns a noop logger.
func GetLoggerFromContext(ctx context.Context) *zap.Logger {
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok {
		return zap.NewNop()
	}
	return logger
}

func WithIdentityPubkey(ctx context.Context, pubKey keys.Public) (context.Context, *zap.Logger) {
	return WithAttrs(ctx, zap.Stringer("identity_public_key", pubKey))
}

// WithOperator tags log lines with the operator a call is addressed to.
func WithOperator(ctx context.Context, identifier string) (context.Context, *zap.Logger) {
	return WithAttrs(ctx, zap.String("operator", identifier))
}

// WithAttrs adds fields to the logger in the context.
func WithAttrs(ctx context.Context, fields ...zap.Field) (context.Context, *zap.Logger) {
	logger := GetLoggerFromContext(ctx).With(fields...)
	return Inject(ctx, logger), logger
}

// NewLogger builds the wallet's JSON logger at the given level ("debug", "info", ...).
// Every entry carries a source object with the calling function.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &SourceCore{Core: core}
	}))
}

// Custom core that automatically adds source information to every log entry
type SourceCore struct {
	zapcore.Core
}

func (s *SourceCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Caller.Defined {
		var functionName string
		if fn := runtime.FuncForPC(entry.Caller.PC); fn != nil {
			functionName = fn.Name()
		}

		fields = append(fields, zap.Object("source", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
			enc.AddString("function", functionName)
			enc.AddString("file", entry.Caller.File)
			enc.AddInt("line", entry.Caller.Line)
			return nil
		})))
	}

	return s.Core.Write(entry, fields)
}

func (s *SourceCore) With(fields []zapcore.Field) zapcore.Core {
	return &SourceCore{Core: s.Core.With(fields)}
}

func (s *SourceCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, s)
	}
	return checkedEntry
}
