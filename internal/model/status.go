package model

type MovementDirection string

const (
	MovementEntry MovementDirection = "ENTRY"
	MovementExit  MovementDirection = "EXIT"
)

type MovementReason string

const (
	ReasonInitial  MovementReason = "INITIAL"
	ReasonManual   MovementReason = "MANUAL"
	ReasonPurchase MovementReason = "PURCHASE"
	ReasonReturn   MovementReason = "RETURN"
)

type OrderStatus string

const (
	OrderCreated   OrderStatus = "CREATED"
	OrderPaid      OrderStatus = "PAID"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// orderTransitions lists the moves an administrator may make. CREATED → PAID
// is absent on purpose: only fulfillment performs it.
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderCreated:   {OrderCancelled: true},
	OrderPaid:      {OrderShipped: true},
	OrderShipped:   {OrderDelivered: true},
	OrderDelivered: {},
	OrderCancelled: {},
}

func CanTransition(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Open reports whether an order in this state still holds a claim on its parts.
func (s OrderStatus) Open() bool {
	return s == OrderCreated || s == OrderPaid || s == OrderShipped
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentApproved  PaymentStatus = "APPROVED"
	PaymentRejected  PaymentStatus = "REJECTED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// PaymentStatusFromProvider maps the provider's status string. Anything it
// does not recognise stays PENDING.
func PaymentStatusFromProvider(status string) PaymentStatus {
	switch status {
	case "approved":
		return PaymentApproved
	case "rejected":
		return PaymentRejected
	case "cancelled":
		return PaymentCancelled
	case "refunded", "charged_back":
		return PaymentRefunded
	default:
		return PaymentPending
	}
}

// paymentTransitions lists the status changes a provider notification may
// apply. A rejected or cancelled payment can still be settled by a later
// attempt; once approved, only a refund moves it.
var paymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:   {PaymentApproved: true, PaymentRejected: true, PaymentCancelled: true, PaymentRefunded: true},
	PaymentRejected:  {PaymentPending: true, PaymentApproved: true, PaymentCancelled: true},
	PaymentCancelled: {PaymentPending: true, PaymentApproved: true, PaymentRejected: true},
	PaymentApproved:  {PaymentRefunded: true},
	PaymentRefunded:  {},
}

func PaymentCanTransition(from, to PaymentStatus) bool {
	return paymentTransitions[from][to]
}
