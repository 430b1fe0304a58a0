package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, account_type, paystack_customer_code, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, account_type, paystack_customer_code, created_at, updated_at
		 FROM users WHERE lower(email) = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindByCustomerCode(ctx context.Context, db *gorm.DB, customerCode string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, account_type, paystack_customer_code, created_at, updated_at
		 FROM users WHERE paystack_customer_code = ?`,
		customerCode,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) UpdateAccountType(ctx context.Context, db *gorm.DB, id snowflake.ID, accountType domain.AccountType, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET account_type = ?, updated_at = ? WHERE id = ?`,
		accountType, updatedAt, id,
	).Error
}

func (r *repo) SetCustomerCode(ctx context.Context, db *gorm.DB, id snowflake.ID, customerCode string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET paystack_customer_code = ?, updated_at = ? WHERE id = ?`,
		customerCode, updatedAt, id,
	).Error
}
