package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Brand struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Part is a spare part sold by the store. Stock is a denormalized counter
// maintained by the stock ledger and must equal the signed sum of the part's
// movements.
type Part struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	PartNumber string          `gorm:"size:50;uniqueIndex;not null" json:"part_number"`
	Name       string          `gorm:"size:200;not null" json:"name"`
	BrandID    *uint           `gorm:"index" json:"brand_id,omitempty"`
	Brand      *Brand          `gorm:"foreignKey:BrandID" json:"brand,omitempty"`
	Price      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Stock      int64           `gorm:"not null;default:0" json:"stock"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Movement is an append-only stock ledger entry. Never updated, never deleted.
type Movement struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	PartID    uint              `gorm:"index;not null" json:"part_id"`
	BrandID   *uint             `gorm:"index" json:"brand_id,omitempty"`
	Quantity  int64             `gorm:"not null" json:"quantity"`
	Direction MovementDirection `gorm:"size:8;index;not null" json:"direction"` // ENTRY, EXIT
	Reason    MovementReason    `gorm:"size:16;index;not null" json:"reason"`   // INITIAL, MANUAL, PURCHASE, RETURN
	UnitPrice decimal.Decimal   `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Note      string            `gorm:"size:255" json:"note"`
	SaleID    *uint             `gorm:"index" json:"sale_id,omitempty"` // provenance of a RETURN
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}

// SignedQuantity is the movement's effect on the part's stock counter.
func (m *Movement) SignedQuantity() int64 {
	if m.Direction == MovementExit {
		return -m.Quantity
	}
	return m.Quantity
}

type Order struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"index;not null" json:"user_id"`
	Status         OrderStatus     `gorm:"size:16;index;not null" json:"status"`
	Total          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	TrackingNumber *string         `gorm:"size:64" json:"tracking_number,omitempty"`
	Lines          []OrderLine     `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type OrderLine struct {
	ID uint `gorm:"primaryKey" json:"id"`
	// FK → orders.id
	OrderID uint `gorm:"index;not null" json:"order_id"`
	// FK → parts.id
	PartID    uint            `gorm:"index;not null" json:"part_id"`
	Quantity  int64           `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"` // locked at checkout
	Subtotal  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
}

type Payment struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	OrderID           *uint           `gorm:"uniqueIndex" json:"order_id"`
	UserID            uint            `gorm:"index;not null" json:"user_id"`
	PreferenceID      *string         `gorm:"size:255;uniqueIndex" json:"preference_id,omitempty"`
	ProviderPaymentID *string         `gorm:"size:255;uniqueIndex" json:"provider_payment_id,omitempty"`
	Status            PaymentStatus   `gorm:"size:16;index;not null" json:"status"`
	StatusDetail      string          `gorm:"size:255" json:"status_detail"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	RawPayload        string          `gorm:"type:text" json:"-"` // last provider document, kept for audit
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Sale is the accounting record written per order line at fulfillment.
type Sale struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     uint            `gorm:"index;not null" json:"order_id"`
	OrderLineID uint            `gorm:"uniqueIndex;not null" json:"order_line_id"`
	UserID      uint            `gorm:"index;not null" json:"user_id"`
	PartID      uint            `gorm:"index;not null" json:"part_id"`
	BrandID     *uint           `gorm:"index" json:"brand_id,omitempty"`
	MovementID  uint            `gorm:"not null" json:"movement_id"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Total       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
}

type Return struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	SaleID     *uint           `gorm:"index" json:"sale_id,omitempty"`
	PartID     uint            `gorm:"index;not null" json:"part_id"`
	MovementID uint            `gorm:"not null" json:"movement_id"`
	Quantity   int64           `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Total      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Reason     string          `gorm:"size:500" json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}

// FulfillmentAlert marks a payment the provider approved but the store could
// not fulfill. Someone has to reconcile it by hand.
type FulfillmentAlert struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PaymentID uint      `gorm:"index;not null" json:"payment_id"`
	OrderID   uint      `gorm:"index;not null" json:"order_id"`
	Reason    string    `gorm:"size:1000;not null" json:"reason"`
	Resolved  bool      `gorm:"not null;default:false" json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

type OutboxEvent struct {
	ID            uint       `gorm:"primaryKey"`
	EventID       string     `gorm:"size:36;uniqueIndex;not null"`
	AggregateType string     `gorm:"size:32;not null"`
	AggregateID   string     `gorm:"size:64;index;not null"`
	EventType     string     `gorm:"size:64;not null"`
	Payload       string     `gorm:"type:text;not null"`
	PublishedAt   *time.Time `gorm:"index"`
	CreatedAt     time.Time
}

// WebhookDelivery is one inbound notification as received, with what became of it.
type WebhookDelivery struct {
	ID        uint   `gorm:"primaryKey"`
	RequestID string `gorm:"size:128;index"`
	Topic     string `gorm:"size:64"`
	DataID    string `gorm:"size:64;index"`
	Outcome   string `gorm:"size:16;index;not null"` // processed, duplicate, stale, ignored, error
	Error     string `gorm:"size:500"`
	CreatedAt time.Time
}
