package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type AccountType string

const (
	AccountTypeFree    AccountType = "free"
	AccountTypePremium AccountType = "premium"
)

type User struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	Email                string       `gorm:"not null" json:"email"`
	Name                 string       `json:"name"`
	AccountType          AccountType  `gorm:"not null" json:"account_type"`
	PaystackCustomerCode *string      `json:"paystack_customer_code,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Repository reads and updates marketplace users. Users are created by the
// marketplace itself; this service only flips plan state and provider codes.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	FindByCustomerCode(ctx context.Context, db *gorm.DB, customerCode string) (*User, error)
	UpdateAccountType(ctx context.Context, db *gorm.DB, id snowflake.ID, accountType AccountType, updatedAt time.Time) error
	SetCustomerCode(ctx context.Context, db *gorm.DB, id snowflake.ID, customerCode string, updatedAt time.Time) error
}

var ErrNotFound = errors.New("user_not_found")
