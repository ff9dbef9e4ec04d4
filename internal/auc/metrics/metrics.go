package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for AUC batch creation and delivery.
type Metrics struct {
	// Batch outcomes by environment and result
	Builds *prometheus.CounterVec

	// Delivery attempts by result
	Deliveries *prometheus.CounterVec

	// Entries written per delivered batch
	BatchEntries prometheus.Histogram

	CreateLatency prometheus.Histogram
}

// New creates the AUC metrics on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Builds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "simrelease_auc_builds_total",
			Help: "AUC batch creations by environment and result",
		}, []string{"environment", "result"}), // result: "delivered", "no_data", "no_valid", "failed"

		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "simrelease_auc_deliveries_total",
			Help: "AUC batch delivery attempts by result",
		}, []string{"result"}),

		BatchEntries: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "simrelease_auc_batch_entries",
			Help:    "Provisioning entries per delivered AUC batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),

		CreateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "simrelease_auc_create_duration_seconds",
			Help:    "Duration of AUC creation including registry reads and delivery",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementBuild records one creation outcome.
func (m *Metrics) IncrementBuild(environment, result string) {
	if m != nil {
		m.Builds.WithLabelValues(environment, result).Inc()
	}
}

// IncrementDelivery records one delivery attempt.
func (m *Metrics) IncrementDelivery(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.Deliveries.WithLabelValues(result).Inc()
}

// ObserveBatch records the size of a delivered batch.
func (m *Metrics) ObserveBatch(entries int) {
	if m != nil {
		m.BatchEntries.Observe(float64(entries))
	}
}

// ObserveCreateLatency records the duration of one creation call.
func (m *Metrics) ObserveCreateLatency(d time.Duration) {
	if m != nil {
		m.CreateLatency.Observe(d.Seconds())
	}
}
