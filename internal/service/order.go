package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"partstore-core/internal/auth"
	"partstore-core/internal/dto"
	"partstore-core/internal/metrics"
	"partstore-core/internal/model"
	"partstore-core/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const idempotencyTTL = 24 * time.Hour

type OrderService interface {
	Checkout(ctx context.Context, user *auth.Identity, items []dto.CheckoutItem) (*model.Order, error)
	// CheckoutIdempotent returns the order an earlier request with the same
	// key created instead of creating a second one.
	CheckoutIdempotent(ctx context.Context, user *auth.Identity, key string, items []dto.CheckoutItem) (*model.Order, error)
	UpdateStatus(ctx context.Context, orderID uint, target model.OrderStatus, trackingNumber *string) (*model.Order, error)
	CancelExpired(ctx context.Context, olderThan time.Duration) (int, error)
	GetOrder(ctx context.Context, user *auth.Identity, orderID uint) (*model.Order, error)
	ListOrders(ctx context.Context, user *auth.Identity) ([]*model.Order, error)
}

type orderServiceImpl struct {
	db              *gorm.DB
	partRepo        repository.PartRepository
	orderRepo       repository.OrderRepository
	paymentRepo     repository.PaymentRepository
	outboxRepo      repository.OutboxRepository
	idempotencyRepo repository.IdempotencyRepository
	log             *zap.Logger
}

// NewOrderService accepts a nil idempotencyRepo; keyed checkouts then behave
// like plain ones.
func NewOrderService(
	db *gorm.DB,
	partRepo repository.PartRepository,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	outboxRepo repository.OutboxRepository,
	idempotencyRepo repository.IdempotencyRepository,
	log *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		db:              db,
		partRepo:        partRepo,
		orderRepo:       orderRepo,
		paymentRepo:     paymentRepo,
		outboxRepo:      outboxRepo,
		idempotencyRepo: idempotencyRepo,
		log:             log.Named("order"),
	}
}

func (s *orderServiceImpl) Checkout(ctx context.Context, user *auth.Identity, items []dto.CheckoutItem) (order *model.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.Checkout")
	defer func() {
		metrics.Checkouts.WithLabelValues(metrics.Result(err)).Inc()
		finishSpan(span, err)
	}()

	if !user.Authenticated() {
		return nil, ErrAuthenticationRequired
	}

	quantities, partIDs, err := mergeItems(items)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("order.lines", len(partIDs)))

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parts, err := s.partRepo.FindMany(ctx, tx, partIDs)
		if err != nil {
			return fmt.Errorf("load parts: %w", err)
		}
		byID := make(map[uint]*model.Part, len(parts))
		for _, p := range parts {
			byID[p.ID] = p
		}

		order = &model.Order{
			UserID: user.UserID,
			Status: model.OrderCreated,
			Total:  decimal.Zero,
		}
		lines := make([]*model.OrderLine, 0, len(partIDs))
		for _, id := range partIDs {
			part, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: %d", ErrPartNotFound, id)
			}
			qty := quantities[id]
			// Availability is checked without a lock and nothing is
			// reserved; fulfillment re-checks under the part lock.
			if qty > part.Stock {
				return fmt.Errorf("%w: part %d has %d, requested %d", ErrInsufficientStock, id, part.Stock, qty)
			}

			subtotal := part.Price.Mul(decimal.NewFromInt(qty))
			lines = append(lines, &model.OrderLine{
				PartID:    id,
				Quantity:  qty,
				UnitPrice: part.Price,
				Subtotal:  subtotal,
			})
			order.Total = order.Total.Add(subtotal)
		}

		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("store order in db: %w", err)
		}
		for _, l := range lines {
			l.OrderID = order.ID
		}
		if err := s.orderRepo.CreateOrderLines(ctx, tx, lines); err != nil {
			return fmt.Errorf("store order lines in db: %w", err)
		}

		order.Lines = make([]model.OrderLine, len(lines))
		for i, l := range lines {
			order.Lines[i] = *l
		}

		return enqueueEvent(ctx, tx, s.outboxRepo, aggregateOrder, order.ID, EventOrderCreated, map[string]any{
			"order_id": order.ID,
			"user_id":  order.UserID,
			"total":    order.Total,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.Uint("order_id", order.ID),
		zap.Uint("user_id", user.UserID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("lines", len(order.Lines)),
	)
	return order, nil
}

func (s *orderServiceImpl) CheckoutIdempotent(ctx context.Context, user *auth.Identity, key string, items []dto.CheckoutItem) (*model.Order, error) {
	if key == "" || s.idempotencyRepo == nil {
		return s.Checkout(ctx, user, items)
	}
	if !user.Authenticated() {
		return nil, ErrAuthenticationRequired
	}

	storeKey := "checkout:" + strconv.FormatUint(uint64(user.UserID), 10) + ":" + key
	orderID, found, err := s.idempotencyRepo.Lookup(ctx, storeKey)
	if err != nil {
		// The key is a convenience; fall through to a normal checkout.
		s.log.Warn("idempotency lookup failed", zap.Error(err))
	}
	if found {
		s.log.Info("checkout replayed", zap.Uint("order_id", orderID), zap.String("key", key))
		return s.GetOrder(ctx, user, orderID)
	}

	order, err := s.Checkout(ctx, user, items)
	if err != nil {
		return nil, err
	}

	if err := s.idempotencyRepo.Remember(ctx, storeKey, order.ID, idempotencyTTL); err != nil {
		s.log.Warn("idempotency remember failed", zap.Error(err), zap.Uint("order_id", order.ID))
	}
	return order, nil
}

func (s *orderServiceImpl) UpdateStatus(ctx context.Context, orderID uint, target model.OrderStatus, trackingNumber *string) (order *model.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.UpdateStatus")
	defer func() { finishSpan(span, err) }()

	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, target)
	}

	var from model.OrderStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if target == model.OrderCancelled {
			if _, err := lockOrderPayment(ctx, tx, s.paymentRepo, orderID); err != nil {
				return err
			}
		}
		order, err = s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		from = order.Status

		if !model.CanTransition(from, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, target)
		}
		if trackingNumber != nil && target != model.OrderShipped {
			return fmt.Errorf("%w: tracking number only applies when shipping", ErrInvalidInput)
		}

		if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, from, target, trackingNumber); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		order.Status = target
		if trackingNumber != nil {
			order.TrackingNumber = trackingNumber
		}
		if target == model.OrderCancelled {
			if _, err := s.paymentRepo.CancelPending(ctx, tx, orderID, "order cancelled"); err != nil {
				return fmt.Errorf("cancel pending payment: %w", err)
			}
		}

		return enqueueEvent(ctx, tx, s.outboxRepo, aggregateOrder, orderID, EventOrderStatusChanged, map[string]any{
			"order_id":        orderID,
			"user_id":         order.UserID,
			"from":            from,
			"to":              target,
			"tracking_number": trackingNumber,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order status changed",
		zap.Uint("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	return order, nil
}

// CancelExpired cancels CREATED orders older than olderThan together with
// their still-pending payment. Each order gets its own transaction so one
// failure does not hold back the rest.
func (s *orderServiceImpl) CancelExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.orderRepo.FindExpired(ctx, time.Now().Add(-olderThan), 200)
	if err != nil {
		return 0, fmt.Errorf("find expired orders: %w", err)
	}

	cancelled := 0
	var errs []error
	for _, id := range ids {
		ok, err := s.cancelExpired(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %d: %w", id, err))
			continue
		}
		if ok {
			cancelled++
		}
	}

	if cancelled > 0 {
		metrics.OrdersExpired.Add(float64(cancelled))
		s.log.Info("expired orders cancelled", zap.Int("count", cancelled))
	}
	return cancelled, errors.Join(errs...)
}

func (s *orderServiceImpl) cancelExpired(ctx context.Context, orderID uint) (bool, error) {
	cancelled := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockOrderPayment(ctx, tx, s.paymentRepo, orderID); err != nil {
			return err
		}
		order, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		// Paid in the meantime.
		if order.Status != model.OrderCreated {
			return nil
		}

		if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, model.OrderCreated, model.OrderCancelled, nil); err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if _, err := s.paymentRepo.CancelPending(ctx, tx, orderID, "expired"); err != nil {
			return fmt.Errorf("cancel pending payment: %w", err)
		}
		cancelled = true

		return enqueueEvent(ctx, tx, s.outboxRepo, aggregateOrder, orderID, EventOrderExpired, map[string]any{
			"order_id": orderID,
			"user_id":  order.UserID,
		})
	})
	return cancelled, err
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, user *auth.Identity, orderID uint) (*model.Order, error) {
	if !user.Authenticated() {
		return nil, ErrAuthenticationRequired
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	if order.UserID != user.UserID && !user.IsAdmin() {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, user *auth.Identity) ([]*model.Order, error) {
	if !user.Authenticated() {
		return nil, ErrAuthenticationRequired
	}
	return s.orderRepo.ListByUser(ctx, user.UserID)
}

func (s *orderServiceImpl) lockOrder(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Order, error) {
	order, err := s.orderRepo.LockByID(ctx, tx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock order %d: %w", orderID, err)
	}
	return order, nil
}

// lockOrderPayment locks the payment attached to orderID and returns nil when
// the order has none yet. Paths that touch both rows lock the payment before
// the order, the same order webhook handling uses.
func lockOrderPayment(ctx context.Context, tx *gorm.DB, payments repository.PaymentRepository, orderID uint) (*model.Payment, error) {
	found, err := payments.FindByOrderID(ctx, tx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment for order %d: %w", orderID, err)
	}

	payment, err := payments.LockByID(ctx, tx, found.ID)
	if err != nil {
		return nil, fmt.Errorf("lock payment %d: %w", found.ID, err)
	}
	return payment, nil
}

// mergeItems validates quantities and folds repeated parts into one line.
// Part ids come back sorted.
func mergeItems(items []dto.CheckoutItem) (map[uint]int64, []uint, error) {
	if len(items) == 0 {
		return nil, nil, ErrEmptyOrder
	}

	quantities := make(map[uint]int64, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, nil, fmt.Errorf("%w: part %d quantity %d", ErrInvalidQuantity, item.PartID, item.Quantity)
		}
		if item.PartID == 0 {
			return nil, nil, fmt.Errorf("%w: part id is required", ErrInvalidInput)
		}
		if item.Quantity > math.MaxInt64-quantities[item.PartID] {
			return nil, nil, fmt.Errorf("%w: part %d total quantity overflows", ErrInvalidQuantity, item.PartID)
		}
		quantities[item.PartID] += item.Quantity
	}

	ids := make([]uint, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return quantities, ids, nil
}
