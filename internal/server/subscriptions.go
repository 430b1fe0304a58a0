package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/payoutd/internal/subscription/domain"
)

func (s *Server) Subscribe(c *gin.Context) {
	var req subscriptiondomain.SubscribeRequest
	// An empty body subscribes to the configured default plan.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, bindingError(err))
			return
		}
	}
	req.UserID = currentUserID(c)

	subscription, err := s.subscriptionSvc.Subscribe(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": subscription})
}

func (s *Server) CurrentSubscription(c *gin.Context) {
	subscription, err := s.subscriptionSvc.Current(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": subscription})
}
