package repository

import (
	"context"
	"partstore-core/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	CreateOrderLines(ctx context.Context, tx *gorm.DB, lines []*model.OrderLine) error
	FindByID(ctx context.Context, orderID uint) (*model.Order, error)
	LockByID(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID uint, from, to model.OrderStatus, trackingNumber *string) error
	ListByUser(ctx context.Context, userID uint) ([]*model.Order, error)
	FindExpired(ctx context.Context, before time.Time, limit int) ([]uint, error)
	CountOpenLinesForPart(ctx context.Context, tx *gorm.DB, partID uint) (int64, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Omit("Lines").Create(order).Error
}

func (r *orderRepoImpl) CreateOrderLines(ctx context.Context, tx *gorm.DB, lines []*model.OrderLine) error {
	return tx.WithContext(ctx).Create(&lines).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID uint) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("part_id") }).
		Where("id = ?", orderID).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

// LockByID locks the order row and loads its lines sorted by part id, the
// order in which fulfillment locks parts.
func (r *orderRepoImpl) LockByID(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}

	err = tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("part_id, id").
		Find(&order.Lines).Error
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// UpdateStatus moves the order from one state to another. It only matches a
// row still in the from state, so a lost race shows up as ErrRecordNotFound.
func (r *orderRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID uint, from, to model.OrderStatus, trackingNumber *string) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if trackingNumber != nil {
		updates["tracking_number"] = *trackingNumber
	}

	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *orderRepoImpl) ListByUser(ctx context.Context, userID uint) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&orders).Error

	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepoImpl) FindExpired(ctx context.Context, before time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("status = ? AND created_at < ?", model.OrderCreated, before).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error

	return ids, err
}

func (r *orderRepoImpl) CountOpenLinesForPart(ctx context.Context, tx *gorm.DB, partID uint) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.OrderLine{}).
		Joins("JOIN orders ON orders.id = order_lines.order_id").
		Where("order_lines.part_id = ?", partID).
		Where("orders.status IN ?", []model.OrderStatus{model.OrderCreated, model.OrderPaid, model.OrderShipped}).
		Count(&count).Error

	return count, err
}
