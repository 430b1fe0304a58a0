package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/payoutd/internal/alert/domain"
	"github.com/smallbiznis/payoutd/internal/payout/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (
			id, user_id, account_id, reference, amount, currency, status,
			transfer_code, failure_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.UserID,
		payout.AccountID,
		payout.Reference,
		payout.Amount,
		payout.Currency,
		payout.Status,
		payout.TransferCode,
		payout.FailureReason,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*domain.Payout, error) {
	var payout domain.Payout
	err := db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).Take(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repo) FindByReferenceForUpdate(ctx context.Context, db *gorm.DB, reference string) (*domain.Payout, error) {
	var payout domain.Payout
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference).
		Take(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repo) UpdateSettlement(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, failure_reason = ?, settled_at = ?, updated_at = ?
		 WHERE id = ?`,
		payout.Status,
		payout.FailureReason,
		payout.SettledAt,
		payout.UpdatedAt,
		payout.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Payout, error) {
	var items []*domain.Payout
	stmt := db.WithContext(ctx).Model(&domain.Payout{}).Where("user_id = ?", filter.UserID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListUnalertedPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Payout, error) {
	var items []domain.Payout
	alerted := db.Session(&gorm.Session{NewDB: true}).
		Model(&alertdomain.Alert{}).
		Select("1").
		Where("alerts.kind = ? AND alerts.dedup_key = payouts.reference", alertdomain.KindPayoutStale)
	stmt := db.WithContext(ctx).
		Model(&domain.Payout{}).
		Where("status = ? AND created_at < ?", domain.StatusPending, before).
		Where("NOT EXISTS (?)", alerted).
		Order("created_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
