package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer is a seller's relationship record with a buyer, keyed by
// (SellerID, Email).
type Customer struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	SellerID     snowflake.ID `gorm:"not null;index" json:"seller_id"`
	Email        string       `gorm:"not null" json:"email"`
	Name         string       `json:"name"`
	FirstOrderID snowflake.ID `gorm:"not null" json:"first_order_id"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListCustomerFilter struct {
	SellerID snowflake.ID
	Email    string
	Cursor   *Cursor
	Limit    int
}
