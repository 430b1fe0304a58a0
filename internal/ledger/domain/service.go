package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Ensure(ctx context.Context, db *gorm.DB, ledger *Ledger) error
	Find(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Ledger, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Ledger, error)
	Update(ctx context.Context, db *gorm.DB, ledger *Ledger) error
	InsertEntry(ctx context.Context, db *gorm.DB, entry *Entry) (bool, error)
	HasEntry(ctx context.Context, db *gorm.DB, userID snowflake.ID, sourceType SourceType, sourceID string, types ...EntryType) (bool, error)
	ListEntries(ctx context.Context, db *gorm.DB, filter ListEntriesFilter) ([]*Entry, error)
}

type CreditRequest struct {
	UserID     snowflake.ID
	Amount     int64
	SourceType SourceType
	SourceID   string
}

type ReserveRequest struct {
	UserID    snowflake.ID
	Amount    int64
	Reference string
}

type SettleRequest struct {
	UserID    snowflake.ID
	Amount    int64
	Reference string
	Outcome   Outcome
}

type ListEntriesRequest struct {
	pagination.Pagination
	UserID snowflake.ID
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []Entry `json:"entries"`
}

type Service interface {
	Credit(ctx context.Context, req CreditRequest) (*Ledger, error)
	ReserveForWithdrawal(ctx context.Context, req ReserveRequest) (*Ledger, error)
	SettleWithdrawal(ctx context.Context, req SettleRequest) (*Ledger, error)
	Get(ctx context.Context, userID snowflake.ID) (*Ledger, error)
	ListEntries(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	// WithTx binds the service to an outer transaction.
	WithTx(tx *gorm.DB) Service
}

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidSource       = errors.New("invalid_source")
	ErrInvalidReference    = errors.New("invalid_reference")
	ErrInvalidOutcome      = errors.New("invalid_outcome")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrPendingUnderflow    = errors.New("pending_underflow")
	ErrInvariantViolation  = errors.New("ledger_invariant_violation")
)
