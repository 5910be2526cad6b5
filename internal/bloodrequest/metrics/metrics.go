package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the request lifecycle engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Lifecycle transitions by target status
	Transitions *prometheus.CounterVec

	// Acceptance attempts by outcome: won, lost, duplicate, self, not_found, error
	AcceptOutcomes *prometheus.CounterVec

	// Transient store failures that triggered a retry
	Retries prometheus.Counter

	// Requests cancelled by the expiry sweep, by trigger: sweeper, read
	Expired *prometheus.CounterVec

	// Donors notified per request and fan-out duration
	FanOutRecipients prometheus.Histogram
	FanOutLatency    prometheus.Histogram

	// Notifications that could not be delivered
	NotifyFailures prometheus.Counter
}

// New registers the engine metrics on reg. A nil registerer builds the
// collectors without registering them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hemogrid_request_transitions_total",
			Help: "Request status transitions by target status",
		}, []string{"status"}),

		AcceptOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hemogrid_accept_outcomes_total",
			Help: "Acceptance attempts by outcome",
		}, []string{"outcome"}),

		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "hemogrid_store_retries_total",
			Help: "Transactions replayed after a transient store failure",
		}),

		Expired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hemogrid_requests_expired_total",
			Help: "Pending requests cancelled after passing their deadline",
		}, []string{"trigger"}),

		FanOutRecipients: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hemogrid_fanout_recipients",
			Help:    "Eligible donors notified per new request",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),

		FanOutLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hemogrid_fanout_duration_seconds",
			Help:    "Duration of donor fan-out for a new request",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "hemogrid_notify_failures_total",
			Help: "Notifications dropped after a sink failure",
		}),
	}
}

func (m *Metrics) IncrementTransition(status string) {
	if m != nil {
		m.Transitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementAcceptOutcome(outcome string) {
	if m != nil {
		m.AcceptOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementRetry() {
	if m != nil {
		m.Retries.Inc()
	}
}

func (m *Metrics) AddExpired(trigger string, n int) {
	if m != nil && n > 0 {
		m.Expired.WithLabelValues(trigger).Add(float64(n))
	}
}

// ObserveFanOut records how many donors a request reached and how long it took.
func (m *Metrics) ObserveFanOut(recipients int, d time.Duration) {
	if m != nil {
		m.FanOutRecipients.Observe(float64(recipients))
		m.FanOutLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementNotifyFailure() {
	if m != nil {
		m.NotifyFailures.Inc()
	}
}
