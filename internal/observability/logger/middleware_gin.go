package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/payoutd/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging.
type MiddlewareConfig struct {
	// Debug attaches the raw handler error to the log line.
	Debug bool
	// ErrorClassifier maps a handler error to a (type, code) pair.
	ErrorClassifier func(err error) (string, string)
}

// RequestLogger assigns every request an id, echoes it back in the
// X-Request-Id header and writes one log line when the handler returns.
func RequestLogger(base *zap.Logger, cfg MiddlewareConfig) gin.HandlerFunc {
	if base == nil {
		base = zap.NewNop()
	}
	return func(c *gin.Context) {
		started := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(started)),
		}
		if last := c.Errors.Last(); last != nil {
			if cfg.ErrorClassifier != nil {
				errType, errCode := cfg.ErrorClassifier(last.Err)
				fields = append(fields, zap.String("error_type", errType), zap.String("error_code", errCode))
			}
			if cfg.Debug {
				fields = append(fields, zap.Error(last.Err))
			}
		}

		WithContext(c.Request.Context(), base).Log(requestLevel(route, status), "http_request", fields...)
	}
}

func requestLevel(route string, status int) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
