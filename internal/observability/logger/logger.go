package logger

import (
	"context"
	"fmt"
	"strings"

	obscontext "github.com/smallbiznis/payoutd/internal/observability/context"
	"github.com/smallbiznis/payoutd/internal/usercontext"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultServiceName = "payoutd"

// Config configures the process logger.
type Config struct {
	ServiceName         string
	Environment         string
	Version             string
	Level               string
	Format              string
	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the process-wide zap logger. Sampling uses zap's production
// defaults so a burst of identical webhook failures cannot flood stdout.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = "json"
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		zapCfg.Encoding = "console"
	}
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.DisableCaller = !cfg.IncludeCaller
	zapCfg.DisableStacktrace = !cfg.IncludeStackOnError

	log, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = defaultServiceName
	}
	log = log.With(
		zap.String("service", service),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.StopHook(func() {
			_ = log.Sync()
		}))
	}
	return log, nil
}

func parseLevel(raw string) (zapcore.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

// WithContext tags base with whatever correlation data ctx carries: the
// inbound request id, the acting user, the webhook event being processed
// and the active trace span.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	var fields []zap.Field
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if userID, ok := usercontext.UserIDFromContext(ctx); ok {
		fields = append(fields, zap.String("user_id", userID.String()))
	}
	if eventType, eventID := obscontext.EventFromContext(ctx); eventType != "" {
		fields = append(fields, zap.String("event_type", eventType), zap.String("event_id", eventID))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()), zap.String("span_id", sc.SpanID().String()))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
