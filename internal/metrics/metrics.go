// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts handled API requests by endpoint and
	// outcome class.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbridge_requests_total",
		Help: "API requests handled, by endpoint and status class.",
	}, []string{"endpoint", "status"})

	// RateLimited counts admissions denied by the governor or the
	// burst pool.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbridge_rate_limited_total",
		Help: "Requests denied by rate limiting, by endpoint.",
	}, []string{"endpoint"})

	// MessagesEnqueued counts widget messages accepted into the inbox.
	MessagesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbridge_messages_enqueued_total",
		Help: "Widget messages accepted into the inbox queue.",
	})

	// MessagesDrained counts messages handed to the agent consumer.
	MessagesDrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbridge_messages_drained_total",
		Help: "Messages delivered to the agent by inbox drains.",
	})

	// ResponsesEnqueued counts agent replies accepted into the outbox.
	ResponsesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbridge_responses_enqueued_total",
		Help: "Agent responses accepted for widget delivery.",
	})

	// SessionsExpired counts sessions removed by expiry sweeps.
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbridge_sessions_expired_total",
		Help: "Sessions removed because their sliding window lapsed.",
	})
)

// Handler returns the Prometheus exposition handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
