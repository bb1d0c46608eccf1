package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	// Handshake starts by provider
	StartsTotal *prometheus.CounterVec

	// Callback outcomes by provider and outcome (completed, failed,
	// replayed, expired, unknown_state)
	CallbackOutcome *prometheus.CounterVec

	// End-to-end callback processing latency
	CallbackLatency prometheus.Histogram

	// Sessions superseded by a newer start for the same user+provider
	SupersededTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		StartsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vouch_verification_starts_total",
			Help: "Total verification handshakes started by provider",
		}, []string{"provider"}),

		CallbackOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vouch_verification_callback_outcomes_total",
			Help: "Total verification callback outcomes by provider and outcome",
		}, []string{"provider", "outcome"}),

		CallbackLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vouch_verification_callback_duration_seconds",
			Help:    "Duration of callback processing including status persistence",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		SupersededTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vouch_verification_sessions_superseded_total",
			Help: "Total pending sessions superseded by a newer start",
		}, []string{"provider"}),
	}
}

// IncrementStart records a started handshake.
func (m *Metrics) IncrementStart(provider string) {
	if m != nil {
		m.StartsTotal.WithLabelValues(provider).Inc()
	}
}

// IncrementCallback records a callback outcome.
func (m *Metrics) IncrementCallback(provider, outcome string) {
	if m != nil {
		m.CallbackOutcome.WithLabelValues(provider, outcome).Inc()
	}
}

// ObserveCallbackLatency records the callback processing duration.
func (m *Metrics) ObserveCallbackLatency(d time.Duration) {
	if m != nil {
		m.CallbackLatency.Observe(d.Seconds())
	}
}

// IncrementSuperseded records a pending session replaced by a newer start.
func (m *Metrics) IncrementSuperseded(provider string) {
	if m != nil {
		m.SupersededTotal.WithLabelValues(provider).Inc()
	}
}
