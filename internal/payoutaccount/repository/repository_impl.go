package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/payoutaccount/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LockOwner(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error) {
	var row struct{ ID snowflake.ID }
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Table("users").
		Select("id").
		Where("id = ?", userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_accounts (
			id, user_id, account_number, bank_code, bank_name, account_name,
			recipient_code, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.UserID,
		account.AccountNumber,
		account.BankCode,
		account.BankName,
		account.AccountName,
		account.RecipientCode,
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID, accountID snowflake.ID) (*domain.Account, error) {
	return first(db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, accountID))
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, userID snowflake.ID, accountNumber string) (*domain.Account, error) {
	return first(db.WithContext(ctx).Where("user_id = ? AND account_number = ?", userID, accountNumber))
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Account, error) {
	return first(db.WithContext(ctx).Where("user_id = ? AND active = ?", userID, true))
}

func first(stmt *gorm.DB) (*domain.Account, error) {
	var account domain.Account
	err := stmt.Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Account, error) {
	var accounts []domain.Account
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc, id asc").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) CountByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Account{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *repo) DeactivateAll(ctx context.Context, db *gorm.DB, userID snowflake.ID, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payout_accounts SET active = ?, updated_at = ? WHERE user_id = ? AND active = ?`,
		false, updatedAt, userID, true,
	).Error
}

func (r *repo) Activate(ctx context.Context, db *gorm.DB, accountID snowflake.ID, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payout_accounts SET active = ?, updated_at = ? WHERE id = ?`,
		true, updatedAt, accountID,
	).Error
}
