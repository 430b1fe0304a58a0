package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
)

type InitiateRequest struct {
	UserID snowflake.ID `json:"-"`
	Amount int64        `json:"amount" binding:"required,gt=0"`
	Reason string       `json:"reason" binding:"max=100"`
}

type SettleRequest struct {
	Reference string
	Outcome   Status
	Reason    string
}

type SettleResult struct {
	Payout  *Payout
	Applied bool
}

type ListRequest struct {
	pagination.Pagination
	UserID snowflake.ID `form:"-"`
	Status string       `form:"status"`
}

type ListResponse struct {
	pagination.PageInfo
	Payouts []Payout `json:"payouts"`
}

type Receipt struct {
	Filename string
	Content  []byte
}

type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (*Payout, error)
	// Settle applies a terminal provider outcome. Applied is false when the
	// payout already left pending.
	Settle(ctx context.Context, req SettleRequest) (*SettleResult, error)
	Get(ctx context.Context, userID, payoutID snowflake.ID) (*Payout, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Receipt(ctx context.Context, userID, payoutID snowflake.ID) (*Receipt, error)
	// ListStale returns pending payouts created before olderThan that have
	// not been reported to operators yet, oldest first.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]Payout, error)
}

var (
	ErrInvalidUser        = errors.New("invalid_user")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrAmountBelowMinimum = errors.New("amount_below_minimum")
	ErrAmountAboveMaximum = errors.New("amount_above_maximum")
	ErrInvalidReference   = errors.New("invalid_reference")
	ErrInvalidOutcome     = errors.New("invalid_outcome")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrNoPayoutAccount    = errors.New("no_payout_account")
	ErrPayoutInProgress   = errors.New("payout_in_progress")
	ErrNotFound           = errors.New("payout_not_found")
)
