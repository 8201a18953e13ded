// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UnknownLabel replaces label values that come from untrusted input and
// are not known to the process.
const UnknownLabel = "unknown"

var (
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_provider_calls_total",
			Help: "Total number of custody provider calls by outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custody_provider_call_duration_seconds",
			Help:    "Duration of custody provider calls",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"provider", "operation"},
	)

	AggregationTaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_aggregation_task_failures_total",
			Help: "Balance fetch tasks that contributed nothing to a summary",
		},
		[]string{"provider", "network"},
	)

	AggregationPartial = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_aggregation_partial_total",
			Help: "Balance summaries returned before every task settled",
		},
	)

	Withdrawals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_withdrawals_total",
			Help: "Withdrawal requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_webhook_events_total",
			Help: "Provider events by type and reconciliation outcome",
		},
		[]string{"provider", "event", "outcome"},
	)

	SettlementPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_settlement_polls_total",
			Help: "Transfer status lookups for processing withdrawals by provider and result",
		},
		[]string{"provider", "result"},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_notifications_dropped_total",
			Help: "Notifications dropped because the dispatch queue was full",
		},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_notification_failures_total",
			Help: "Notification deliveries that failed per emitter",
		},
		[]string{"emitter"},
	)
)

// Outcome maps an error to the outcome label used across counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
