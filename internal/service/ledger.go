package service

import (
	"context"
	"fmt"

	"partstore-core/internal/metrics"
	"partstore-core/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ledgerEntry is one stock change about to be written. The ledger does not
// check availability: callers hold the part row lock and check before
// posting an exit.
type ledgerEntry struct {
	PartID    uint
	BrandID   *uint
	Quantity  int64
	Direction model.MovementDirection
	Reason    model.MovementReason
	UnitPrice decimal.Decimal
	Note      string
	SaleID    *uint
}

// recordMovement appends the movement and applies its signed delta to the
// part's counter. Both writes go through tx and commit or roll back together.
func recordMovement(ctx context.Context, tx *gorm.DB, e ledgerEntry) (*model.Movement, error) {
	if e.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	movement := &model.Movement{
		PartID:    e.PartID,
		BrandID:   e.BrandID,
		Quantity:  e.Quantity,
		Direction: e.Direction,
		Reason:    e.Reason,
		UnitPrice: e.UnitPrice,
		Note:      e.Note,
		SaleID:    e.SaleID,
	}
	if err := tx.WithContext(ctx).Create(movement).Error; err != nil {
		return nil, fmt.Errorf("insert movement: %w", err)
	}

	if err := applyToCounter(ctx, tx, e.PartID, movement.SignedQuantity()); err != nil {
		return nil, err
	}

	metrics.StockMovements.WithLabelValues(string(e.Direction), string(e.Reason)).Inc()
	return movement, nil
}

// applyToCounter lets the database do the arithmetic so concurrent writers
// never lose an update.
func applyToCounter(ctx context.Context, tx *gorm.DB, partID uint, delta int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Part{}).
		Where("id = ?", partID).
		Update("stock", gorm.Expr("stock + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("apply stock delta: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return ErrPartNotFound
	}
	return nil
}
