package repository

import (
	"context"
	"partstore-core/internal/model"

	"gorm.io/gorm"
)

type ReturnRepository interface {
	Create(ctx context.Context, tx *gorm.DB, ret *model.Return) error
	ReturnedQuantity(ctx context.Context, tx *gorm.DB, saleID uint) (int64, error)
}

type returnRepoImpl struct {
	db *gorm.DB
}

func NewReturnRepository(db *gorm.DB) ReturnRepository {
	return &returnRepoImpl{db: db}
}

func (r *returnRepoImpl) Create(ctx context.Context, tx *gorm.DB, ret *model.Return) error {
	return tx.WithContext(ctx).Create(ret).Error
}

func (r *returnRepoImpl) ReturnedQuantity(ctx context.Context, tx *gorm.DB, saleID uint) (int64, error) {
	var total int64
	err := tx.WithContext(ctx).Model(&model.Return{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("sale_id = ?", saleID).
		Scan(&total).Error

	return total, err
}
