package repository

import (
	"context"

	"github.com/smallbiznis/payoutd/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(order)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByLine(ctx context.Context, db *gorm.DB, reference string, lineNo int) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, reference, line_no, buyer_email, buyer_name, seller_id, product_id, amount, currency, created_at
		 FROM orders WHERE reference = ? AND line_no = ?`,
		reference,
		lineNo,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListBySeller(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Order, error) {
	var orders []*domain.Order
	stmt := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("seller_id = ?", filter.SellerID)
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Limit(filter.Limit + 1).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
