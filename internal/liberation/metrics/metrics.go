package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the liberation engine.
type Metrics struct {
	// Per-identifier outcomes by environment and status
	Outcomes *prometheus.CounterVec

	// Identifiers recovered from a panic
	Recovered *prometheus.CounterVec

	// Whole-request latency by environment
	RequestLatency *prometheus.HistogramVec

	// Requests that failed before any identifier was processed
	WrapperFailures *prometheus.CounterVec
}

// New registers the liberation metrics on reg. A nil reg leaves them
// unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "simrelease_liberation_outcomes_total",
			Help: "Liberation outcomes by environment and status",
		}, []string{"environment", "status"}), // status: "success", "error", "notFound"

		Recovered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "simrelease_liberation_recovered_panics_total",
			Help: "Identifiers whose processing panicked and was converted to an error outcome",
		}, []string{"environment"}),

		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simrelease_liberation_request_duration_seconds",
			Help:    "Duration of a liberation request across all identifiers",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"environment"}),

		WrapperFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "simrelease_liberation_request_failures_total",
			Help: "Liberation requests that failed as a whole",
		}, []string{"environment"}),
	}
}

func (m *Metrics) IncrementOutcome(environment, status string) {
	if m != nil {
		m.Outcomes.WithLabelValues(environment, status).Inc()
	}
}

func (m *Metrics) IncrementRecovered(environment string) {
	if m != nil {
		m.Recovered.WithLabelValues(environment).Inc()
	}
}

func (m *Metrics) ObserveRequest(environment string, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(environment).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementWrapperFailure(environment string) {
	if m != nil {
		m.WrapperFailures.WithLabelValues(environment).Inc()
	}
}
