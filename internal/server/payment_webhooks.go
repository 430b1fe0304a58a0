package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payoutd/internal/observability/logger"
	"github.com/smallbiznis/payoutd/internal/payment/adapters/paystack"
	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// HandlePaymentWebhook acknowledges every delivery from a known provider with
// 200. Failures are logged and kept on the event log for replay, never
// surfaced to the provider.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	ctx := c.Request.Context()
	log := logger.WithContext(ctx, s.log).With(zap.String("provider", provider))

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Warn("failed to read webhook body", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	err = s.paymentSvc.Ingest(ctx, provider, payload, webhookSignature(c, provider))
	switch {
	case err == nil,
		errors.Is(err, paymentdomain.ErrEventAlreadyProcessed),
		errors.Is(err, paymentdomain.ErrEventIgnored):
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, paymentdomain.ErrProviderNotFound):
		AbortWithError(c, err)
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		c.Status(http.StatusOK)
	default:
		log.Error("webhook ingest failed", zap.Error(err))
		c.Status(http.StatusOK)
	}
}

func webhookSignature(c *gin.Context, provider string) string {
	switch provider {
	case paystack.ProviderName:
		return c.GetHeader(paystack.SignatureHeader)
	default:
		return ""
	}
}
