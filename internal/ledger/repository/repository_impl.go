package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Ensure(ctx context.Context, db *gorm.DB, ledger *domain.Ledger) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ledger).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Ledger, error) {
	return r.find(db.WithContext(ctx), userID)
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Ledger, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *repo) find(stmt *gorm.DB, userID snowflake.ID) (*domain.Ledger, error) {
	var ledger domain.Ledger
	err := stmt.Where("user_id = ?", userID).Take(&ledger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, ledger *domain.Ledger) error {
	return db.WithContext(ctx).Exec(
		`UPDATE ledgers
		 SET total_earnings = ?, withdrawn_earnings = ?, pending = ?, updated_at = ?
		 WHERE user_id = ?`,
		ledger.TotalEarnings,
		ledger.WithdrawnEarnings,
		ledger.Pending,
		ledger.UpdatedAt,
		ledger.UserID,
	).Error
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.Entry) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) HasEntry(ctx context.Context, db *gorm.DB, userID snowflake.ID, sourceType domain.SourceType, sourceID string, types ...domain.EntryType) (bool, error) {
	var count int64
	stmt := db.WithContext(ctx).Model(&domain.Entry{}).
		Where("user_id = ? AND source_type = ? AND source_id = ?", userID, sourceType, sourceID)
	if len(types) > 0 {
		stmt = stmt.Where("entry_type IN ?", types)
	}
	if err := stmt.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, filter domain.ListEntriesFilter) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	stmt := db.WithContext(ctx).Model(&domain.Entry{}).Where("user_id = ?", filter.UserID)
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
