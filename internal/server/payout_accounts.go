package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/payoutd/internal/payoutaccount/domain"
)

func (s *Server) AddPayoutAccount(c *gin.Context) {
	var req accountdomain.AddAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.UserID = currentUserID(c)

	account, err := s.accountSvc.Add(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": account})
}

func (s *Server) ListPayoutAccounts(c *gin.Context) {
	accounts, err := s.accountSvc.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if accounts == nil {
		accounts = []accountdomain.Account{}
	}

	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

func (s *Server) GetActivePayoutAccount(c *gin.Context) {
	account, err := s.accountSvc.GetActive(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) ActivatePayoutAccount(c *gin.Context) {
	accountID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	account, err := s.accountSvc.SetActive(c.Request.Context(), accountdomain.SetActiveRequest{
		UserID:    currentUserID(c),
		AccountID: accountID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}
