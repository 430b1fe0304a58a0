package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/payoutd/internal/customer/domain"
	orderdomain "github.com/smallbiznis/payoutd/internal/order/domain"
)

// ListCustomers returns the buyers who purchased from the calling seller.
func (s *Server) ListCustomers(c *gin.Context) {
	var req customerdomain.ListCustomerRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.SellerID = currentUserID(c)
	req.Email = strings.TrimSpace(req.Email)

	resp, err := s.customerSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ListSales returns the calling seller's order lines, newest first.
func (s *Server) ListSales(c *gin.Context) {
	var req orderdomain.ListSalesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.SellerID = currentUserID(c)

	resp, err := s.orderSvc.ListSales(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
