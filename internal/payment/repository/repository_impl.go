package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, received_at,
			processed_at, attempts, last_error
		 FROM webhook_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed_at = ?, attempts = ?, last_error = ''
		 WHERE id = ?`,
		processedAt,
		attempts,
		id,
	).Error
}

func (r *repo) RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET attempts = ?, last_error = ?
		 WHERE id = ? AND processed_at IS NULL`,
		attempts,
		lastError,
		id,
	).Error
}

func (r *repo) ClaimPending(ctx context.Context, db *gorm.DB, maxAttempts, limit int) ([]domain.EventRecord, error) {
	var events []domain.EventRecord
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("processed_at IS NULL AND attempts < ?", maxAttempts).
		Order("received_at asc, id asc").
		Limit(limit).
		Find(&events).Error
	if err != nil || len(events) == 0 {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(events))
	for i := range events {
		ids = append(ids, events[i].ID)
		events[i].Attempts++
	}
	err = db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET attempts = attempts + 1 WHERE id IN ?`,
		ids,
	).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) ListFailed(ctx context.Context, db *gorm.DB, filter domain.ListFailedFilter) ([]*domain.EventRecord, error) {
	var events []*domain.EventRecord
	stmt := db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Where("processed_at IS NULL AND attempts > 0")
	if filter.Provider != "" {
		stmt = stmt.Where("provider = ?", filter.Provider)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(received_at < ?) OR (received_at = ? AND id < ?)",
			filter.Cursor.ReceivedAt, filter.Cursor.ReceivedAt, filter.Cursor.ID)
	}
	err := stmt.
		Order("received_at desc, id desc").
		Limit(filter.Limit + 1).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
