package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntryType classifies a movement recorded in the ledger journal.
type EntryType string

const (
	EntryTypeCredit   EntryType = "credit"
	EntryTypeReserve  EntryType = "reserve"
	EntryTypeWithdraw EntryType = "withdraw"
	EntryTypeRelease  EntryType = "release"
)

type SourceType string

const (
	SourceTypeOrder  SourceType = "order"
	SourceTypePayout SourceType = "payout"
)

// Outcome is the terminal result of a withdrawal.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeReversed  Outcome = "reversed"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomeFailed, OutcomeReversed:
		return true
	}
	return false
}

// Ledger is the per-user earnings balance.
type Ledger struct {
	UserID            snowflake.ID `gorm:"primaryKey" json:"user_id"`
	TotalEarnings     int64        `gorm:"not null" json:"total_earnings"`
	WithdrawnEarnings int64        `gorm:"not null" json:"withdrawn_earnings"`
	Pending           int64        `gorm:"not null" json:"pending"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (Ledger) TableName() string { return "ledgers" }

// Available is what the user may still withdraw.
func (l Ledger) Available() int64 {
	return l.TotalEarnings - l.WithdrawnEarnings - l.Pending
}

// Validate reports whether the balance satisfies the ledger invariant.
func (l Ledger) Validate() error {
	if l.TotalEarnings < 0 || l.WithdrawnEarnings < 0 || l.Pending < 0 {
		return ErrInvariantViolation
	}
	if l.WithdrawnEarnings > l.TotalEarnings || l.Available() < 0 {
		return ErrInvariantViolation
	}
	return nil
}

// Entry is one immutable journal line. (UserID, SourceType, SourceID,
// EntryType) is unique and doubles as the idempotency key.
type Entry struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID `gorm:"not null" json:"user_id"`
	EntryType  EntryType    `gorm:"not null" json:"entry_type"`
	Amount     int64        `gorm:"not null" json:"amount"`
	SourceType SourceType   `gorm:"not null" json:"source_type"`
	SourceID   string       `gorm:"not null" json:"source_id"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (Entry) TableName() string { return "ledger_entries" }

type EntryCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListEntriesFilter struct {
	UserID snowflake.ID
	Cursor *EntryCursor
	Limit  int
}
