package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purity",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"session", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purity",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"session", "method", "path", "status"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purity",
			Subsystem: "fudi",
			Name:      "messages_received_total",
			Help:      "Inbound FUDI messages dispatched to a handler.",
		},
		[]string{"selector"},
	)
	messagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purity",
			Subsystem: "fudi",
			Name:      "messages_dropped_total",
			Help:      "Inbound FUDI messages with no registered handler.",
		},
		[]string{"reason"},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purity",
			Subsystem: "fudi",
			Name:      "messages_sent_total",
			Help:      "Outbound FUDI send attempts by result.",
		},
		[]string{"result"},
	)
	handshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purity",
			Subsystem: "session",
			Name:      "handshake_duration_seconds",
			Help:      "Time from session create to ready or failure.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)
	sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purity",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions by target state.",
		},
		[]string{"state"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			messagesReceived,
			messagesDropped,
			messagesSent,
			handshakeDuration,
			sessionTransitions,
		)
	})
}

func RecordHTTPRequest(session, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(session, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(session, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordReceived(selector string) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(selector).Inc()
}

func RecordDropped(reason string) {
	RegisterMetrics()
	messagesDropped.WithLabelValues(reason).Inc()
}

func RecordSend(ok bool) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "failed"
	}
	messagesSent.WithLabelValues(result).Inc()
}

func RecordHandshake(outcome string, duration time.Duration) {
	RegisterMetrics()
	handshakeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordTransition(state string) {
	RegisterMetrics()
	sessionTransitions.WithLabelValues(state).Inc()
}
