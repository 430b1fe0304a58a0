package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Account is a verified bank destination for withdrawals. Rows are never
// hard-deleted because payouts reference them.
type Account struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID `gorm:"not null" json:"user_id"`
	AccountNumber string       `gorm:"not null" json:"account_number"`
	BankCode      string       `gorm:"not null" json:"bank_code"`
	BankName      string       `json:"bank_name"`
	AccountName   string       `json:"account_name"`
	RecipientCode string       `gorm:"not null" json:"-"`
	Active        bool         `gorm:"not null" json:"active"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (Account) TableName() string { return "payout_accounts" }

type Repository interface {
	// LockOwner takes the per-user lock that serializes account changes.
	// It reports false when the user does not exist.
	LockOwner(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, userID, accountID snowflake.ID) (*Account, error)
	FindByNumber(ctx context.Context, db *gorm.DB, userID snowflake.ID, accountNumber string) (*Account, error)
	FindActive(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Account, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Account, error)
	CountByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)
	DeactivateAll(ctx context.Context, db *gorm.DB, userID snowflake.ID, updatedAt time.Time) error
	Activate(ctx context.Context, db *gorm.DB, accountID snowflake.ID, updatedAt time.Time) error
}
