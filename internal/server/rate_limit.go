package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payoutd/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	"go.uber.org/zap"
)

const rateLimitReasonUserRate = "user-rate"

// PayoutRateLimit throttles payout initiation per user. When redis is
// unreachable the request is refused rather than let through.
func (s *Server) PayoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.payoutLimiter == nil || !s.payoutLimiter.Enabled() {
			c.Next()
			return
		}

		userID := currentUserID(c)
		if userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.payoutLimiter.AllowUser(ctx, userID.String())
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("payout rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			denyRateLimit(c, s, endpoint, rateLimitReasonUserRate, retryAfter)
			return
		}

		recordRateLimit(ctx, endpoint, "allowed", s.obsMetrics)
		c.Next()
	}
}

func denyRateLimit(c *gin.Context, s *Server, endpoint, reason string, retryAfter int) {
	ctx := c.Request.Context()
	logger.WithContext(ctx, s.log).Warn("payout rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	recordRateLimit(ctx, endpoint, "denied", s.obsMetrics)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimit(ctx context.Context, endpoint, decision string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimit(ctx, endpoint, decision)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
