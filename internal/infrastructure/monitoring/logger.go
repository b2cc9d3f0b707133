// Package monitoring provides the observability implementations: the zap
// logger behind pkg/logger, the prometheus metric set, and tracing setup.
package monitoring

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/config"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// ZapLogger implements logger.Logger on zap. The level is atomic so it can
// be changed at runtime when the config file is edited.
type ZapLogger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// NewZapLogger builds the production logger from configuration.
func NewZapLogger(cfg *config.LogConfig) *ZapLogger {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	return &ZapLogger{
		zap:   zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		level: level,
	}
}

// SetLevel changes the level at runtime. Unknown strings fall back to info.
func (l *ZapLogger) SetLevel(level string) {
	l.level.SetLevel(parseLevel(level))
}

// Sync flushes buffered entries. Call before exit.
func (l *ZapLogger) Sync() {
	_ = l.zap.Sync()
}

func (l *ZapLogger) Debug(ctx context.Context, message string, fields ...logger.Field) {
	l.zap.Debug(message, l.zapFields(ctx, fields)...)
}

func (l *ZapLogger) Info(ctx context.Context, message string, fields ...logger.Field) {
	l.zap.Info(message, l.zapFields(ctx, fields)...)
}

func (l *ZapLogger) Warn(ctx context.Context, message string, fields ...logger.Field) {
	l.zap.Warn(message, l.zapFields(ctx, fields)...)
}

func (l *ZapLogger) Error(ctx context.Context, message string, err error, fields ...logger.Field) {
	zf := l.zapFields(ctx, fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.zap.Error(message, zf...)
}

func (l *ZapLogger) Fatal(ctx context.Context, message string, err error, fields ...logger.Field) {
	zf := l.zapFields(ctx, fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.zap.Fatal(message, zf...)
}

func (l *ZapLogger) WithFields(fields ...logger.Field) logger.Logger {
	zf := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zf = append(zf, zap.Any(f.Key, f.Value))
	}
	return &ZapLogger{zap: l.zap.With(zf...), level: l.level}
}

func (l *ZapLogger) WithComponent(component string) logger.Logger {
	return &ZapLogger{
		zap:   l.zap.With(zap.String("component", component)),
		level: l.level,
	}
}

func (l *ZapLogger) zapFields(ctx context.Context, fields []logger.Field) []zap.Field {
	zf := make([]zap.Field, 0, len(fields)+3)
	for _, f := range fields {
		zf = append(zf, zap.Any(f.Key, f.Value))
	}

	if ctx != nil {
		if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
			zf = append(zf,
				zap.String("trace_id", span.SpanContext().TraceID().String()),
				zap.String("span_id", span.SpanContext().SpanID().String()),
			)
		}
		if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok && requestID != "" {
			zf = append(zf, zap.String("request_id", requestID))
		}
	}
	return zf
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
