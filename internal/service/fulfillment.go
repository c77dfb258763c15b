package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"partstore-core/internal/dto"
	"partstore-core/internal/metrics"
	"partstore-core/internal/model"
	"partstore-core/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FulfillmentService turns a paid order into stock exits, sale records and
// the CREATED -> PAID transition, all or nothing.
type FulfillmentService interface {
	Fulfill(ctx context.Context, orderID uint) (*dto.FulfillmentResult, error)
	// FulfillInTx runs inside a savepoint of tx. On error the savepoint is
	// rolled back and tx stays usable.
	FulfillInTx(ctx context.Context, tx *gorm.DB, orderID uint) (*dto.FulfillmentResult, error)
}

type fulfillmentServiceImpl struct {
	db         *gorm.DB
	inventory  InventoryService
	orderRepo  repository.OrderRepository
	saleRepo   repository.SaleRepository
	outboxRepo repository.OutboxRepository
	log        *zap.Logger
}

func NewFulfillmentService(
	db *gorm.DB,
	inventory InventoryService,
	orderRepo repository.OrderRepository,
	saleRepo repository.SaleRepository,
	outboxRepo repository.OutboxRepository,
	log *zap.Logger,
) FulfillmentService {
	return &fulfillmentServiceImpl{
		db:         db,
		inventory:  inventory,
		orderRepo:  orderRepo,
		saleRepo:   saleRepo,
		outboxRepo: outboxRepo,
		log:        log.Named("fulfillment"),
	}
}

func (s *fulfillmentServiceImpl) Fulfill(ctx context.Context, orderID uint) (*dto.FulfillmentResult, error) {
	var result *dto.FulfillmentResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.FulfillInTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *fulfillmentServiceImpl) FulfillInTx(ctx context.Context, tx *gorm.DB, orderID uint) (result *dto.FulfillmentResult, err error) {
	ctx, span := tracer.Start(ctx, "FulfillmentService.Fulfill")
	defer func() {
		metrics.Fulfillments.WithLabelValues(metrics.Result(err)).Inc()
		finishSpan(span, err)
	}()
	span.SetAttributes(attribute.Int64("order.id", int64(orderID)))

	err = tx.Transaction(func(sp *gorm.DB) error {
		order, err := s.orderRepo.LockByID(ctx, sp, orderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		if err != nil {
			return fmt.Errorf("lock order %d: %w", orderID, err)
		}
		if order.Status != model.OrderCreated {
			return fmt.Errorf("%w: order %d is %s", ErrAlreadyProcessed, orderID, order.Status)
		}
		if len(order.Lines) == 0 {
			return fmt.Errorf("%w: order %d", ErrEmptyOrder, orderID)
		}

		// Parts are locked in ascending id order so two fulfillments never
		// wait on each other in opposite directions.
		lines := order.Lines
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].PartID < lines[j].PartID })

		result = &dto.FulfillmentResult{OrderID: orderID}
		for i := range lines {
			line := &lines[i]
			price := line.UnitPrice

			mv, err := s.inventory.RegisterExitInTx(ctx, sp, line.PartID, line.Quantity, &price,
				model.ReasonPurchase, fmt.Sprintf("order #%d", orderID))
			if err != nil {
				return fmt.Errorf("line %d: %w", line.ID, err)
			}

			sale := &model.Sale{
				OrderID:     orderID,
				OrderLineID: line.ID,
				UserID:      order.UserID,
				PartID:      line.PartID,
				BrandID:     mv.BrandID,
				MovementID:  mv.ID,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Total:       line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)),
			}
			if err := s.saleRepo.Create(ctx, sp, sale); err != nil {
				return fmt.Errorf("insert sale for line %d: %w", line.ID, err)
			}

			result.MovementIDs = append(result.MovementIDs, mv.ID)
			result.SaleIDs = append(result.SaleIDs, sale.ID)
		}

		if err := s.orderRepo.UpdateStatus(ctx, sp, orderID, model.OrderCreated, model.OrderPaid, nil); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		result.FulfilledAt = time.Now()

		return enqueueEvent(ctx, sp, s.outboxRepo, aggregateOrder, orderID, EventOrderPaid, map[string]any{
			"order_id": orderID,
			"user_id":  order.UserID,
			"total":    order.Total,
			"sale_ids": result.SaleIDs,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order fulfilled",
		zap.Uint("order_id", orderID),
		zap.Int("lines", len(result.SaleIDs)),
	)
	return result, nil
}
