package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	// FindLatestByUser returns the most recent record regardless of status.
	FindLatestByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	FindOpenByUserForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	// FindOpenByCustomerForUpdate returns the newest pending or active record.
	FindOpenByCustomerForUpdate(ctx context.Context, db *gorm.DB, customerCode string) (*Subscription, error)
	FindByCodeForUpdate(ctx context.Context, db *gorm.DB, subscriptionCode string) (*Subscription, error)
}

type SubscribeRequest struct {
	UserID   snowflake.ID `json:"-"`
	PlanCode string       `json:"plan_code"`
}

type ActivateRequest struct {
	CustomerCode     string
	SubscriptionCode string
	PlanCode         string
	ProviderStatus   string
}

type UpdateStatusRequest struct {
	SubscriptionCode string
	ProviderStatus   string
}

type DisableRequest struct {
	SubscriptionCode string
	ProviderStatus   string
}

type Service interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (*Subscription, error)
	Activate(ctx context.Context, req ActivateRequest) (*Subscription, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Subscription, error)
	Disable(ctx context.Context, req DisableRequest) (*Subscription, error)
	Current(ctx context.Context, userID snowflake.ID) (*Subscription, error)
}

var (
	ErrInvalidUser             = errors.New("invalid_user")
	ErrInvalidPlan             = errors.New("invalid_plan")
	ErrInvalidCustomer         = errors.New("invalid_customer")
	ErrInvalidSubscriptionCode = errors.New("invalid_subscription_code")
	ErrInvalidProviderStatus   = errors.New("invalid_provider_status")
	ErrSubscriptionConflict    = errors.New("subscription_conflict")
	ErrSubscriptionNotFound    = errors.New("subscription_not_found")
)
