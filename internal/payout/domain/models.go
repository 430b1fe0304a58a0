package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/payoutd/internal/ledger/domain"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusReversed  Status = "reversed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusReversed:
		return true
	}
	return false
}

// CanTransition allows only pending -> terminal.
func (s Status) CanTransition(to Status) bool {
	return s == StatusPending && to.Terminal()
}

// LedgerOutcome maps a terminal payout status to the ledger settlement.
func (s Status) LedgerOutcome() ledgerdomain.Outcome {
	return ledgerdomain.Outcome(s)
}

type Payout struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID `gorm:"not null" json:"user_id"`
	AccountID     snowflake.ID `gorm:"not null" json:"account_id"`
	Reference     string       `gorm:"not null" json:"reference"`
	Amount        int64        `gorm:"not null" json:"amount"`
	Currency      string       `gorm:"not null" json:"currency"`
	Status        Status       `gorm:"not null" json:"status"`
	TransferCode  string       `json:"transfer_code,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	SettledAt     *time.Time   `json:"settled_at,omitempty"`
}

func (Payout) TableName() string { return "payouts" }

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	UserID snowflake.ID
	Status Status
	Cursor *Cursor
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*Payout, error)
	FindByReferenceForUpdate(ctx context.Context, db *gorm.DB, reference string) (*Payout, error)
	UpdateSettlement(ctx context.Context, db *gorm.DB, payout *Payout) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payout, error)
	// ListUnalertedPendingBefore skips payouts that already carry a
	// payout_stale alert, so each sweep reaches past the ones reported.
	ListUnalertedPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Payout, error)
}

// UserLock serializes payout initiation per user across replicas.
type UserLock interface {
	TryLockUser(ctx context.Context, userID string) (string, bool, error)
	ReleaseUser(ctx context.Context, userID, token string) error
}
