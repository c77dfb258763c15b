package service

import "errors"

// Validation
var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrEmptyOrder      = errors.New("order has no items")
	ErrInvalidInput    = errors.New("invalid input")
)

// Domain
var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	ErrAlreadyProcessed       = errors.New("already processed")
	ErrPartInUse              = errors.New("part is referenced by open orders or stock movements")
	ErrSaleMismatch           = errors.New("return does not match the originating sale")
)

// Lookup
var (
	ErrPartNotFound    = errors.New("part not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrSaleNotFound    = errors.New("sale not found")
)

// Access
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrForbidden              = errors.New("forbidden")
)

// Trust and integration
var (
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrMalformedWebhook      = errors.New("malformed webhook")
	ErrProviderUnavailable   = errors.New("payment provider unavailable")
	ErrProviderNotConfigured = errors.New("payment provider credential not configured")
)
