package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the relationship or refreshes updated_at when the
	// seller already knows the buyer.
	Upsert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByEmail(ctx context.Context, db *gorm.DB, sellerID snowflake.ID, email string) (*Customer, error)
	List(ctx context.Context, db *gorm.DB, filter ListCustomerFilter) ([]*Customer, error)
}

type RecordRequest struct {
	SellerID snowflake.ID
	Email    string
	Name     string
	OrderID  snowflake.ID
}

type ListCustomerRequest struct {
	pagination.Pagination
	SellerID snowflake.ID `form:"-"`
	Email    string       `form:"email"`
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*Customer, error)
	List(ctx context.Context, req ListCustomerRequest) (ListCustomerResponse, error)
	WithTx(tx *gorm.DB) Service
}

var (
	ErrInvalidSeller    = errors.New("invalid_seller")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidOrder     = errors.New("invalid_order")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
