package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Order is one purchased line item. (Reference, LineNo) is unique, so a
// redelivered charge never creates a second row.
type Order struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Reference  string       `gorm:"not null" json:"reference"`
	LineNo     int          `gorm:"not null" json:"line_no"`
	BuyerEmail string       `gorm:"not null" json:"buyer_email"`
	BuyerName  string       `json:"buyer_name"`
	SellerID   snowflake.ID `gorm:"not null" json:"seller_id"`
	ProductID  string       `gorm:"not null" json:"product_id"`
	Amount     int64        `gorm:"not null" json:"amount"`
	Currency   string       `gorm:"not null" json:"currency"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (Order) TableName() string { return "orders" }

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	SellerID snowflake.ID
	Cursor   *Cursor
	Limit    int
}
