// Package revocation keeps the list of access token ids revoked by logout.
// Entries expire with the token they revoke.
package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"simrelease/pkg/platform/sentinel"
)

// List is a token revocation list.
type List interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}

// Metrics observes revocation checks. Nil disables observation.
type Metrics struct {
	CheckDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CheckDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "simrelease_token_revocation_check_duration_ms",
			Help:    "Latency of token revocation checks in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
	}
}

func (m *Metrics) observe(start time.Time) {
	if m == nil {
		return
	}
	m.CheckDuration.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
