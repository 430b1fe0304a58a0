// Package domain contains the premium plan subscription model and its
// lifecycle rules.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus is the local lifecycle state. Raw provider states are
// kept separately in ProviderStatus.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// CanTransition allows pending -> active, pending -> cancelled and
// active -> cancelled. Nothing leaves cancelled.
func CanTransition(from, to SubscriptionStatus) bool {
	switch from {
	case SubscriptionStatusPending:
		return to == SubscriptionStatusActive || to == SubscriptionStatusCancelled
	case SubscriptionStatusActive:
		return to == SubscriptionStatusCancelled
	default:
		return false
	}
}

// MapProviderStatus folds a Paystack subscription status onto the local
// lifecycle. ok is false for statuses this service does not know.
func MapProviderStatus(raw string) (SubscriptionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "non-renewing", "attention":
		return SubscriptionStatusActive, true
	case "cancelled", "complete", "completed":
		return SubscriptionStatusCancelled, true
	default:
		return "", false
	}
}

// Subscription is a user's premium plan record.
type Subscription struct {
	ID               snowflake.ID       `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID       `gorm:"not null;index" json:"user_id"`
	CustomerCode     string             `gorm:"not null" json:"customer_code"`
	SubscriptionCode *string            `json:"subscription_code,omitempty"`
	PlanCode         string             `gorm:"not null" json:"plan_code"`
	Status           SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	ProviderStatus   string             `json:"provider_status,omitempty"`
	AuthorizationURL string             `json:"authorization_url,omitempty"`
	AccessReference  string             `json:"access_reference,omitempty"`
	CreatedAt        time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"not null" json:"updated_at"`
	CancelledAt      *time.Time         `json:"cancelled_at,omitempty"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
