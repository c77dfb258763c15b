package repository

import (
	"context"
	"partstore-core/internal/model"

	"gorm.io/gorm"
)

// MovementRepository is the read side of the stock ledger. Movements are
// written only by the inventory service.
type MovementRepository interface {
	ListByPart(ctx context.Context, partID uint, limit int) ([]*model.Movement, error)
	SignedSum(ctx context.Context, tx *gorm.DB, partID uint) (int64, error)
	CountByPart(ctx context.Context, tx *gorm.DB, partID uint) (int64, error)
}

type movementRepoImpl struct {
	db *gorm.DB
}

func NewMovementRepository(db *gorm.DB) MovementRepository {
	return &movementRepoImpl{
		db: db,
	}
}

func (r *movementRepoImpl) ListByPart(ctx context.Context, partID uint, limit int) ([]*model.Movement, error) {
	var movements []*model.Movement

	err := r.db.WithContext(ctx).
		Where("part_id = ?", partID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&movements).Error
	if err != nil {
		return nil, err
	}

	return movements, nil
}

func (r *movementRepoImpl) SignedSum(ctx context.Context, tx *gorm.DB, partID uint) (int64, error) {
	var sum int64
	err := tx.WithContext(ctx).Model(&model.Movement{}).
		Select("COALESCE(SUM(CASE WHEN direction = ? THEN quantity ELSE -quantity END), 0)", model.MovementEntry).
		Where("part_id = ?", partID).
		Scan(&sum).Error

	return sum, err
}

func (r *movementRepoImpl) CountByPart(ctx context.Context, tx *gorm.DB, partID uint) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.Movement{}).
		Where("part_id = ?", partID).
		Count(&count).Error

	return count, err
}
