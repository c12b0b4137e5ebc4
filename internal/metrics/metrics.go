// Package metrics holds Prometheus collectors of the settlement service.
// Collectors register in the default registry, exposed by promhttp on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nkiryanov/settlement/internal/money"
)

const namespace = "settlement"

var (
	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment notifications by outcome",
		},
		[]string{"outcome"},
	)

	settledCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_cents_total",
			Help:      "Money split by recorded orders, in cents",
		},
		[]string{"party"},
	)

	withdrawals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Withdrawal transitions by status",
		},
		[]string{"status"},
	)

	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Duration of payout provider transfer calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of served HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "code"},
	)
)

// Outcome label values shared by collectors
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"

	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
)

func WebhookEvent(outcome string) {
	webhookEvents.WithLabelValues(outcome).Inc()
}

func OrderSettled(fee money.Cents, seller money.Cents) {
	settledCents.WithLabelValues("platform").Add(float64(fee))
	settledCents.WithLabelValues("seller").Add(float64(seller))
}

// status is "requested" or a withdrawal status
func Withdrawal(status string) {
	withdrawals.WithLabelValues(status).Inc()
}

func TransferObserved(outcome string, started time.Time) {
	transferDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

// route is the matched mux pattern, never the raw path
func HTTPRequest(route string, code int, started time.Time) {
	httpDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(time.Since(started).Seconds())
}
