package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the processed-event log row. ProcessedAt stays nil until a
// handler succeeds; failures bump Attempts and keep LastError.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	Attempts        int            `json:"attempts" gorm:"not null"`
	LastError       string         `json:"last_error,omitempty"`
}

func (EventRecord) TableName() string { return "webhook_events" }

type EventCursor struct {
	ID         snowflake.ID
	ReceivedAt time.Time
}

type ListFailedFilter struct {
	Provider string
	Cursor   *EventCursor
	Limit    int
}
