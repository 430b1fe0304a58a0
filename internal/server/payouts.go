package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
)

func (s *Server) InitiatePayout(c *gin.Context) {
	var req payoutdomain.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.UserID = currentUserID(c)

	payout, err := s.payoutSvc.Initiate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payout})
}

func (s *Server) ListPayouts(c *gin.Context) {
	var req payoutdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.UserID = currentUserID(c)

	resp, err := s.payoutSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayout(c *gin.Context) {
	payoutID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payout, err := s.payoutSvc.Get(c.Request.Context(), currentUserID(c), payoutID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) GetPayoutReceipt(c *gin.Context) {
	payoutID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	receipt, err := s.payoutSvc.Receipt(c.Request.Context(), currentUserID(c), payoutID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipt.Filename))
	c.Data(http.StatusOK, "application/pdf", receipt.Content)
}
