package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LifecycleRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reb_lifecycle_rows_total",
			Help: "Subscription rows handled by lifecycle jobs by outcome",
		},
		[]string{"job", "outcome"}, // sync|trial|reminder , synced|updated|expired|notified|skipped|error
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reb_lifecycle_job_duration_seconds",
			Help:    "Wall time of one lifecycle job run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"job"},
	)

	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reb_ratelimit_decisions_total",
			Help: "Rate limiter decisions by rule",
		},
		[]string{"rule", "decision"}, // allowed|limited|error
	)

	BillingCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reb_billing_calls_total",
			Help: "Billing provider API calls by operation and result",
		},
		[]string{"op", "result"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reb_notifications_total",
			Help: "Notification lifecycle counter by stage and type",
		},
		[]string{"stage", "type"}, // published|publish_failed|delivered|failed
	)

	EndpointBreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reb_notification_endpoint_breaker_open",
			Help: "1 while the endpoint's circuit breaker is not closed",
		},
		[]string{"endpoint"},
	)

	RateLimitKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reb_ratelimit_tracked_keys",
			Help: "Keys held by the in-memory rate limiter after the last sweep",
		},
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once; serve and worker commands may both call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			LifecycleRows,
			JobDuration,
			RateLimitDecisions,
			BillingCalls,
			Notifications,
			EndpointBreakerOpen,
			RateLimitKeys,
		)
	})
}
