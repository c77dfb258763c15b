package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partstore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	StockMovements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partstore_stock_movements_total",
			Help: "Stock ledger movements by direction and reason",
		},
		[]string{"direction", "reason"},
	)

	Checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partstore_checkouts_total",
			Help: "Checkout attempts by result",
		},
		[]string{"result"},
	)

	WebhookOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partstore_payment_webhooks_total",
			Help: "Payment webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	Fulfillments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partstore_fulfillments_total",
			Help: "Fulfillment attempts by result",
		},
		[]string{"result"},
	)

	// FulfillmentAlerts counts approved payments that could not be fulfilled.
	// Any increase needs a human.
	FulfillmentAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partstore_fulfillment_alerts_total",
			Help: "Approved payments whose fulfillment failed",
		},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partstore_outbox_events_total",
			Help: "Outbox events handled by the relay",
		},
		[]string{"status"},
	)

	OrdersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partstore_orders_expired_total",
			Help: "Orders cancelled by the expiry sweeper",
		},
	)
)

// Result turns an error into the "success"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
