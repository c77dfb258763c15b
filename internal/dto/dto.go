package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutItem struct {
	PartID   uint  `json:"part_id"`
	Quantity int64 `json:"quantity"`
}

type CheckoutRequest struct {
	Items []CheckoutItem `json:"items"`
}

type UpdateOrderStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"tracking_number"`
}

type PreferenceRequest struct {
	OrderID uint `json:"order_id"`
}

type PreferenceInfo struct {
	PaymentID        uint   `json:"payment_id"`
	PreferenceID     string `json:"preference_id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point,omitempty"`
}

const (
	WebhookIgnored   = "ignored"
	WebhookDuplicate = "duplicate"
	WebhookProcessed = "processed"
	WebhookStale     = "stale" // status can no longer apply to the payment
)

type WebhookAck struct {
	Status        string `json:"status"`
	PaymentID     uint   `json:"payment_id,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
	Fulfilled     bool   `json:"fulfilled,omitempty"`
	AlertID       uint   `json:"alert_id,omitempty"`
}

type MovementRequest struct {
	PartID    uint             `json:"part_id"`
	Quantity  int64            `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Note      string           `json:"note"`
}

type ReturnRequest struct {
	PartID    uint             `json:"part_id"`
	Quantity  int64            `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	SaleID    *uint            `json:"sale_id"`
	Reason    string           `json:"reason"`
}

type CreatePartRequest struct {
	PartNumber   string          `json:"part_number"`
	Name         string          `json:"name"`
	Brand        string          `json:"brand"`
	Price        decimal.Decimal `json:"price"`
	InitialStock int64           `json:"initial_stock"`
}

type StockReport struct {
	PartID     uint  `json:"part_id"`
	Counter    int64 `json:"counter"`
	LedgerSum  int64 `json:"ledger_sum"`
	Movements  int64 `json:"movements"`
	Consistent bool  `json:"consistent"`
}

type FulfillmentResult struct {
	OrderID     uint      `json:"order_id"`
	MovementIDs []uint    `json:"movement_ids"`
	SaleIDs     []uint    `json:"sale_ids"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
