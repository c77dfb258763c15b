package repository

import (
	"context"
	"partstore-core/internal/model"

	"gorm.io/gorm"
)

type FulfillmentAlertRepository interface {
	Create(ctx context.Context, tx *gorm.DB, alert *model.FulfillmentAlert) error
	ListUnresolved(ctx context.Context) ([]*model.FulfillmentAlert, error)
}

type fulfillmentAlertRepoImpl struct {
	db *gorm.DB
}

func NewFulfillmentAlertRepository(db *gorm.DB) FulfillmentAlertRepository {
	return &fulfillmentAlertRepoImpl{db: db}
}

func (r *fulfillmentAlertRepoImpl) Create(ctx context.Context, tx *gorm.DB, alert *model.FulfillmentAlert) error {
	return tx.WithContext(ctx).Create(alert).Error
}

func (r *fulfillmentAlertRepoImpl) ListUnresolved(ctx context.Context) ([]*model.FulfillmentAlert, error) {
	var alerts []*model.FulfillmentAlert
	err := r.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("id").
		Find(&alerts).Error

	if err != nil {
		return nil, err
	}

	return alerts, nil
}
