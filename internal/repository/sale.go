package repository

import (
	"context"
	"partstore-core/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SaleRepository interface {
	Create(ctx context.Context, tx *gorm.DB, sale *model.Sale) error
	LockByID(ctx context.Context, tx *gorm.DB, saleID uint) (*model.Sale, error)
	ListByOrder(ctx context.Context, orderID uint) ([]*model.Sale, error)
}

type saleRepoImpl struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepoImpl{db: db}
}

func (r *saleRepoImpl) Create(ctx context.Context, tx *gorm.DB, sale *model.Sale) error {
	return tx.WithContext(ctx).Create(sale).Error
}

// LockByID locks the sale so concurrent returns against it are counted one
// at a time.
func (r *saleRepoImpl) LockByID(ctx context.Context, tx *gorm.DB, saleID uint) (*model.Sale, error) {
	var sale model.Sale
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", saleID).
		First(&sale).Error

	if err != nil {
		return nil, err
	}

	return &sale, nil
}

func (r *saleRepoImpl) ListByOrder(ctx context.Context, orderID uint) ([]*model.Sale, error) {
	var sales []*model.Sale
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("part_id").
		Find(&sales).Error

	if err != nil {
		return nil, err
	}

	return sales, nil
}
