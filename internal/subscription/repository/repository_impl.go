package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var openStatuses = []domain.SubscriptionStatus{
	domain.SubscriptionStatusPending,
	domain.SubscriptionStatusActive,
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET subscription_code = ?, plan_code = ?, status = ?, provider_status = ?,
		     authorization_url = ?, access_reference = ?, updated_at = ?, cancelled_at = ?
		 WHERE id = ?`,
		subscription.SubscriptionCode,
		subscription.PlanCode,
		subscription.Status,
		subscription.ProviderStatus,
		subscription.AuthorizationURL,
		subscription.AccessReference,
		subscription.UpdatedAt,
		subscription.CancelledAt,
		subscription.ID,
	).Error
}

func (r *repo) FindLatestByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Subscription, error) {
	return first(db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc"))
}

func (r *repo) FindOpenByUserForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Subscription, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status IN ?", userID, openStatuses).
		Order("created_at desc, id desc"))
}

func (r *repo) FindOpenByCustomerForUpdate(ctx context.Context, db *gorm.DB, customerCode string) (*domain.Subscription, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_code = ? AND status IN ?", customerCode, openStatuses).
		Order("created_at desc, id desc"))
}

func (r *repo) FindByCodeForUpdate(ctx context.Context, db *gorm.DB, subscriptionCode string) (*domain.Subscription, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("subscription_code = ?", subscriptionCode))
}

func first(stmt *gorm.DB) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := stmt.Take(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}
