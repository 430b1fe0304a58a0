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
	// InsertEvent reports false when the provider event id is already logged.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, processedAt time.Time) error
	RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string) error
	// ClaimPending locks unprocessed rows below maxAttempts, skipping rows
	// another worker holds, and counts the attempt before returning them.
	ClaimPending(ctx context.Context, db *gorm.DB, maxAttempts, limit int) ([]EventRecord, error)
	ListFailed(ctx context.Context, db *gorm.DB, filter ListFailedFilter) ([]*EventRecord, error)
}

// Adapter verifies and parses one provider's webhooks.
type Adapter interface {
	Provider() string
	Verify(payload []byte, signature string) bool
	Parse(payload []byte) (*Event, error)
}

type ReplayResult struct {
	Claimed   int `json:"claimed"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type ListFailedRequest struct {
	pagination.Pagination
	Provider string `form:"provider"`
}

type ListFailedResponse struct {
	pagination.PageInfo
	Events []EventRecord `json:"events"`
}

type Service interface {
	// Ingest verifies, logs and dispatches one webhook delivery. Handler
	// failures are recorded on the event row and not returned.
	Ingest(ctx context.Context, provider string, payload []byte, signature string) error
	Replay(ctx context.Context, limit int) (ReplayResult, error)
	ListFailed(ctx context.Context, req ListFailedRequest) (ListFailedResponse, error)
}

var (
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrUnhandledEvent        = errors.New("unhandled_event")
	ErrInvalidPageToken      = errors.New("invalid_page_token")
)
