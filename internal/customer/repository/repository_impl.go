package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/customer/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "seller_id"}, {Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).
		Create(customer).Error
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, sellerID snowflake.ID, email string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, seller_id, email, name, first_order_id, created_at, updated_at
		 FROM customers WHERE seller_id = ? AND email = ?`,
		sellerID,
		email,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListCustomerFilter) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	stmt := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("seller_id = ?", filter.SellerID)
	if filter.Email != "" {
		stmt = stmt.Where("email = ?", filter.Email)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Limit(filter.Limit + 1).
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}
