package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindSubscriptionReconciled   Kind = "subscription_reconciled"
	KindSubscriptionCodeConflict Kind = "subscription_code_conflict"
	KindPayoutStale              Kind = "payout_stale"
	KindPayoutPersistFailed      Kind = "payout_persist_failed"
	KindWebhookReplayExhausted   Kind = "webhook_replay_exhausted"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an operator-facing notice. (Kind, DedupKey) is unique so the same
// condition is reported once.
type Alert struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Kind      Kind              `gorm:"not null" json:"kind"`
	Severity  Severity          `gorm:"not null" json:"severity"`
	DedupKey  string            `gorm:"not null" json:"dedup_key"`
	Message   string            `gorm:"not null" json:"message"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
}

func (Alert) TableName() string { return "alerts" }
