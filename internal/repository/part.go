package repository

import (
	"context"
	"partstore-core/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PartRepository interface {
	Create(ctx context.Context, tx *gorm.DB, part *model.Part) error
	FindByID(ctx context.Context, partID uint) (*model.Part, error)
	FindMany(ctx context.Context, tx *gorm.DB, partIDs []uint) ([]*model.Part, error)
	LockByID(ctx context.Context, tx *gorm.DB, partID uint) (*model.Part, error)
	Delete(ctx context.Context, tx *gorm.DB, partID uint) error
	FindOrCreateBrand(ctx context.Context, tx *gorm.DB, name string) (*model.Brand, error)
}

type partRepoImpl struct {
	db *gorm.DB
}

func NewPartRepository(db *gorm.DB) PartRepository {
	return &partRepoImpl{
		db: db,
	}
}

// Create inserts the part with a zero counter. Stock only ever arrives
// through ledger movements.
func (r *partRepoImpl) Create(ctx context.Context, tx *gorm.DB, part *model.Part) error {
	part.Stock = 0
	return tx.WithContext(ctx).Omit("Brand").Create(part).Error
}

func (r *partRepoImpl) FindByID(ctx context.Context, partID uint) (*model.Part, error) {
	var part model.Part
	err := r.db.WithContext(ctx).
		Preload("Brand").
		Where("id = ?", partID).
		First(&part).Error

	if err != nil {
		return nil, err
	}

	return &part, nil
}

func (r *partRepoImpl) FindMany(ctx context.Context, tx *gorm.DB, partIDs []uint) ([]*model.Part, error) {
	var parts []*model.Part
	err := tx.WithContext(ctx).
		Where("id IN ?", partIDs).
		Find(&parts).
		Error

	if err != nil {
		return nil, err
	}

	return parts, nil
}

// LockByID reads the part with SELECT ... FOR UPDATE. The lock is held until
// tx commits or rolls back.
func (r *partRepoImpl) LockByID(ctx context.Context, tx *gorm.DB, partID uint) (*model.Part, error) {
	var part model.Part
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", partID).
		First(&part).Error

	if err != nil {
		return nil, err
	}

	return &part, nil
}

func (r *partRepoImpl) Delete(ctx context.Context, tx *gorm.DB, partID uint) error {
	result := tx.WithContext(ctx).Delete(&model.Part{}, partID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *partRepoImpl) FindOrCreateBrand(ctx context.Context, tx *gorm.DB, name string) (*model.Brand, error) {
	brand := model.Brand{Name: name}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&brand).Error
	if err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).Where("name = ?", name).First(&brand).Error; err != nil {
		return nil, err
	}
	return &brand, nil
}
