package repository

import (
	"context"
	"partstore-core/internal/model"

	"gorm.io/gorm"
)

// WebhookDeliveryRepository keeps an audit trail of inbound provider
// notifications, rejected ones included.
type WebhookDeliveryRepository interface {
	Record(ctx context.Context, delivery *model.WebhookDelivery) error
	ListByDataID(ctx context.Context, dataID string) ([]*model.WebhookDelivery, error)
}

type webhookDeliveryRepoImpl struct {
	db *gorm.DB
}

func NewWebhookDeliveryRepository(db *gorm.DB) WebhookDeliveryRepository {
	return &webhookDeliveryRepoImpl{db: db}
}

func (r *webhookDeliveryRepoImpl) Record(ctx context.Context, delivery *model.WebhookDelivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *webhookDeliveryRepoImpl) ListByDataID(ctx context.Context, dataID string) ([]*model.WebhookDelivery, error) {
	var deliveries []*model.WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("data_id = ?", dataID).
		Order("id").
		Find(&deliveries).Error

	if err != nil {
		return nil, err
	}

	return deliveries, nil
}
