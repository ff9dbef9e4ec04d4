package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit writes.
type Metrics struct {
	Written  *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Dropped  prometheus.Counter
	Queued   prometheus.Gauge
}

// NewMetrics registers the audit metrics on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Written: f.NewCounterVec(prometheus.CounterOpts{
			Name: "simrelease_audit_written_total",
			Help: "Audit entries accepted by the sink, by action",
		}, []string{"action"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "simrelease_audit_write_failures_total",
			Help: "Audit entries the sink rejected, by action",
		}, []string{"action"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "simrelease_audit_dropped_total",
			Help: "Audit entries dropped because the async buffer was full",
		}),
		Queued: f.NewGauge(prometheus.GaugeOpts{
			Name: "simrelease_audit_queue_depth",
			Help: "Audit entries waiting in the async buffer",
		}),
	}
}

func (m *Metrics) IncWritten(action string) {
	if m != nil {
		m.Written.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncFailed(action string) {
	if m != nil {
		m.Failures.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) SetQueued(n int) {
	if m != nil {
		m.Queued.Set(float64(n))
	}
}
