package repository

import (
	"context"
	"partstore-core/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	FindByID(ctx context.Context, paymentID uint) (*model.Payment, error)
	FindByOrderID(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Payment, error)
	LockByID(ctx context.Context, tx *gorm.DB, paymentID uint) (*model.Payment, error)
	Save(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	CancelPending(ctx context.Context, tx *gorm.DB, orderID uint, detail string) (int64, error)
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{db: db}
}

func (r *paymentRepoImpl) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepoImpl) FindByID(ctx context.Context, paymentID uint) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("id = ?", paymentID).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func (r *paymentRepoImpl) FindByOrderID(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Payment, error) {
	var payment model.Payment
	err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}

// LockByID serializes webhook deliveries for the same payment.
func (r *paymentRepoImpl) LockByID(ctx context.Context, tx *gorm.DB, paymentID uint) (*model.Payment, error) {
	var payment model.Payment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", paymentID).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func (r *paymentRepoImpl) Save(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	return tx.WithContext(ctx).Save(payment).Error
}

func (r *paymentRepoImpl) CancelPending(ctx context.Context, tx *gorm.DB, orderID uint, detail string) (int64, error) {
	result := tx.WithContext(ctx).Model(&model.Payment{}).
		Where("order_id = ? AND status = ?", orderID, model.PaymentPending).
		Updates(map[string]interface{}{
			"status":        model.PaymentCancelled,
			"status_detail": detail,
			"updated_at":    time.Now(),
		})

	return result.RowsAffected, result.Error
}
