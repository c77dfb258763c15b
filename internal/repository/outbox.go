package repository

import (
	"context"
	"partstore-core/internal/model"
	"time"

	"gorm.io/gorm"
)

type OutboxRepository interface {
	Add(ctx context.Context, tx *gorm.DB, event *model.OutboxEvent) error
	FetchUnpublished(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []uint) error
}

type outboxRepoImpl struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepoImpl{db: db}
}

func (r *outboxRepoImpl) Add(ctx context.Context, tx *gorm.DB, event *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(event).Error
}

func (r *outboxRepoImpl) FetchUnpublished(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id").
		Limit(limit).
		Find(&events).Error

	if err != nil {
		return nil, err
	}

	return events, nil
}

func (r *outboxRepoImpl) MarkPublished(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id IN ?", ids).
		Update("published_at", time.Now()).Error
}
