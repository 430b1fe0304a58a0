package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
)

func (s *Server) ListFailedWebhookEvents(c *gin.Context) {
	var req paymentdomain.ListFailedRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.paymentSvc.ListFailed(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type replayRequest struct {
	Limit int `form:"limit,default=50" binding:"gte=1,lte=500"`
}

func (s *Server) ReplayWebhookEvents(c *gin.Context) {
	var req replayRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	result, err := s.paymentSvc.Replay(c.Request.Context(), req.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListAlerts(c *gin.Context) {
	var req alertdomain.ListAlertsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.alertSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var req auditdomain.ListAuditLogRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
