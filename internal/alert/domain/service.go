package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, alert *Alert) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Alert, error)
}

type ListFilter struct {
	Kind   Kind
	Cursor *Cursor
	Limit  int
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type RaiseRequest struct {
	Kind     Kind
	Severity Severity
	DedupKey string
	Message  string
	Metadata map[string]any
}

type ListAlertsRequest struct {
	pagination.Pagination
	Kind string `form:"kind"`
}

type ListAlertsResponse struct {
	pagination.PageInfo
	Alerts []Alert `json:"alerts"`
}

type Service interface {
	// Raise records the alert and notifies operators. A repeated
	// (kind, dedup key) is a no-op that returns false.
	Raise(ctx context.Context, req RaiseRequest) (bool, error)
	List(ctx context.Context, req ListAlertsRequest) (ListAlertsResponse, error)
}

var (
	ErrInvalidKind      = errors.New("invalid_kind")
	ErrInvalidMessage   = errors.New("invalid_message")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
