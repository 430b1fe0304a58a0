package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/payoutd/internal/ledger/domain"
)

type ledgerResponse struct {
	*ledgerdomain.Ledger
	Available int64 `json:"available"`
}

func (s *Server) GetLedger(c *gin.Context) {
	ledger, err := s.ledgerSvc.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ledgerResponse{Ledger: ledger, Available: ledger.Available()}})
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	var req ledgerdomain.ListEntriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.UserID = currentUserID(c)

	resp, err := s.ledgerSvc.ListEntries(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
