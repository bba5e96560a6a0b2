package monitoring

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// zapLogger adapts a zap core to the logger.Logger interface used across the
// service.
type zapLogger struct {
	zl    *zap.Logger
	level zap.AtomicLevel
}

// NewZapLogger creates a production JSON logger backed by zap.
func NewZapLogger(cfg *config.LogConfig) (logger.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	parsed, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	level := zap.NewAtomicLevelAt(parsed)

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)

	return &zapLogger{
		zl:    zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)),
		level: level,
	}, nil
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...logger.Field) {
	l.zl.Debug(msg, l.convert(ctx, fields)...)
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...logger.Field) {
	l.zl.Info(msg, l.convert(ctx, fields)...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...logger.Field) {
	l.zl.Warn(msg, l.convert(ctx, fields)...)
}

func (l *zapLogger) Error(ctx context.Context, msg string, err error, fields ...logger.Field) {
	zf := l.convert(ctx, fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.zl.Error(msg, zf...)
}

func (l *zapLogger) Fatal(ctx context.Context, msg string, err error, fields ...logger.Field) {
	zf := l.convert(ctx, fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.zl.Fatal(msg, zf...)
}

func (l *zapLogger) WithFields(fields ...logger.Field) logger.Logger {
	zf := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zf = append(zf, zap.Any(f.Key, f.Value))
	}
	return &zapLogger{zl: l.zl.With(zf...), level: l.level}
}

func (l *zapLogger) WithComponent(component string) logger.Logger {
	return &zapLogger{zl: l.zl.Named(component), level: l.level}
}

func (l *zapLogger) SetLevel(level constants.LogLevel) {
	switch level {
	case constants.LogLevelDebug:
		l.level.SetLevel(zapcore.DebugLevel)
	case constants.LogLevelInfo:
		l.level.SetLevel(zapcore.InfoLevel)
	case constants.LogLevelWarn:
		l.level.SetLevel(zapcore.WarnLevel)
	case constants.LogLevelError:
		l.level.SetLevel(zapcore.ErrorLevel)
	default:
		l.level.SetLevel(zapcore.FatalLevel)
	}
}

func (l *zapLogger) GetLevel() constants.LogLevel {
	switch l.level.Level() {
	case zapcore.DebugLevel:
		return constants.LogLevelDebug
	case zapcore.InfoLevel:
		return constants.LogLevelInfo
	case zapcore.WarnLevel:
		return constants.LogLevelWarn
	case zapcore.ErrorLevel:
		return constants.LogLevelError
	default:
		return constants.LogLevelFatal
	}
}

func (l *zapLogger) convert(ctx context.Context, fields []logger.Field) []zap.Field {
	zf := make([]zap.Field, 0, len(fields)+2)
	if ctx != nil {
		if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok {
			zf = append(zf, zap.String("request_id", requestID))
		}
		if clientKey, ok := ctx.Value(constants.ContextKeyClientKey).(string); ok {
			zf = append(zf, zap.String("client_key", clientKey))
		}
	}
	for _, f := range fields {
		zf = append(zf, zap.Any(f.Key, f.Value))
	}
	return zf
}
