package domain

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var (
	nubanPattern    = regexp.MustCompile(`^[0-9]{10}$`)
	bankCodePattern = regexp.MustCompile(`^[0-9]{3,6}$`)
)

type AddAccountRequest struct {
	UserID        snowflake.ID `json:"-"`
	AccountNumber string       `json:"account_number" binding:"required"`
	BankCode      string       `json:"bank_code" binding:"required"`
	AccountName   string       `json:"account_name"`
}

// Normalize trims input and validates the NUBAN account number and bank code.
func (r *AddAccountRequest) Normalize() error {
	if r.UserID == 0 {
		return ErrInvalidUser
	}
	r.AccountNumber = strings.TrimSpace(r.AccountNumber)
	r.BankCode = strings.TrimSpace(r.BankCode)
	r.AccountName = strings.TrimSpace(r.AccountName)
	if !nubanPattern.MatchString(r.AccountNumber) {
		return ErrInvalidAccountNumber
	}
	if !bankCodePattern.MatchString(r.BankCode) {
		return ErrInvalidBankCode
	}
	return nil
}

type SetActiveRequest struct {
	UserID    snowflake.ID
	AccountID snowflake.ID
}

type Service interface {
	Add(ctx context.Context, req AddAccountRequest) (*Account, error)
	SetActive(ctx context.Context, req SetActiveRequest) (*Account, error)
	GetActive(ctx context.Context, userID snowflake.ID) (*Account, error)
	Get(ctx context.Context, userID, accountID snowflake.ID) (*Account, error)
	List(ctx context.Context, userID snowflake.ID) ([]Account, error)
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidAccountNumber = errors.New("invalid_account_number")
	ErrInvalidBankCode      = errors.New("invalid_bank_code")
	ErrDuplicateAccount     = errors.New("duplicate_account")
	ErrNotFound             = errors.New("payout_account_not_found")
)
