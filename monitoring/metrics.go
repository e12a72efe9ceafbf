// Package monitoring exposes the core's Prometheus metrics. Collectors are
// registered through promauto; the gate server serves them on /metrics.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_reservations_total",
			Help: "Inventory reserve/release operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total tickets minted",
		},
	)

	purchaseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "purchase_duration_seconds",
			Help:    "End to end purchase latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_validations_total",
			Help: "Gate scan outcomes",
		},
		[]string{"outcome"},
	)

	transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_transfers_total",
			Help: "Transfer state machine operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	paymentWebhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment provider webhook deliveries",
		},
		[]string{"provider", "outcome"},
	)
)

func TrackReservation(operation, outcome string) {
	reservations.WithLabelValues(operation, outcome).Inc()
}

func TrackTicketsIssued(n int) {
	ticketsIssued.Add(float64(n))
}

func TrackPurchaseDuration(d time.Duration) {
	purchaseDuration.Observe(d.Seconds())
}

func TrackValidation(outcome string) {
	validations.WithLabelValues(outcome).Inc()
}

func TrackTransfer(operation, outcome string) {
	transfers.WithLabelValues(operation, outcome).Inc()
}

func TrackPaymentWebhook(provider, outcome string) {
	paymentWebhooks.WithLabelValues(provider, outcome).Inc()
}
