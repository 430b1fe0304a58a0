package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when the (reference, line_no) row already exists.
	Insert(ctx context.Context, db *gorm.DB, order *Order) (bool, error)
	FindByLine(ctx context.Context, db *gorm.DB, reference string, lineNo int) (*Order, error)
	ListBySeller(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Order, error)
}

type PurchaseItem struct {
	SellerID  snowflake.ID
	ProductID string
	Amount    int64
}

type PurchaseRequest struct {
	Reference  string
	BuyerEmail string
	BuyerName  string
	// Currency and ChargedAmount are what the provider actually collected.
	// Item amounts are buyer-supplied and must fit inside ChargedAmount.
	Currency      string
	ChargedAmount int64
	Items         []PurchaseItem
}

type PurchaseResult struct {
	Orders []Order
	// Created counts line items seen for the first time.
	Created int
}

type ListSalesRequest struct {
	pagination.Pagination
	SellerID snowflake.ID `form:"-"`
}

type ListSalesResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

type Service interface {
	RecordPurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
	ListSales(ctx context.Context, req ListSalesRequest) (ListSalesResponse, error)
}

// LedgerSourceID is the credit dedup key for one purchased line.
func LedgerSourceID(reference string, lineNo int) string {
	return fmt.Sprintf("%s:%d", reference, lineNo)
}

var (
	ErrInvalidReference = errors.New("invalid_reference")
	ErrInvalidBuyer     = errors.New("invalid_buyer")
	ErrInvalidItems     = errors.New("invalid_items")
	ErrInvalidSeller    = errors.New("invalid_seller")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidPageToken = errors.New("invalid_page_token")

	ErrChargeAmountMismatch = errors.New("charge_amount_mismatch")
	ErrCurrencyMismatch     = errors.New("currency_mismatch")
)
