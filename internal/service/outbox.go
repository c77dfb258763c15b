package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"partstore-core/internal/model"
	"partstore-core/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	aggregateOrder   = "order"
	aggregatePayment = "payment"
	aggregatePart    = "part"
)

const (
	EventOrderCreated         = "order.created"
	EventOrderPaid            = "order.paid"
	EventOrderStatusChanged   = "order.status_changed"
	EventOrderExpired         = "order.expired"
	EventPaymentStatusChanged = "payment.status_changed"
	EventFulfillmentFailed    = "fulfillment.failed"
	EventStockMoved           = "stock.moved"
)

// enqueueEvent stores an event in the outbox inside tx. The relay publishes it
// after commit, so consumers only ever see committed state.
func enqueueEvent(ctx context.Context, tx *gorm.DB, outbox repository.OutboxRepository, aggregateType string, aggregateID uint, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	event := &model.OutboxEvent{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   strconv.FormatUint(uint64(aggregateID), 10),
		EventType:     eventType,
		Payload:       string(body),
	}
	if err := outbox.Add(ctx, tx, event); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}
