package llm

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	enrichmentRequestsTotal *prometheus.CounterVec

	enrichmentDuration prometheus.Histogram

	enrichmentErrorsTotal *prometheus.CounterVec
)

// InitMetrics registers the enrichment Prometheus metrics once at startup.
func InitMetrics() {
	metricsOnce.Do(func() {
		enrichmentRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatlens_enrichment_requests_total",
				Help: "Total enrichment requests by status",
			},
			[]string{"status"},
		)

		enrichmentDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "threatlens_enrichment_duration_seconds",
				Help:    "Duration of enrichment calls in seconds",
				Buckets: []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		)

		enrichmentErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatlens_enrichment_errors_total",
				Help: "Total enrichment errors by type",
			},
			[]string{"error_type"},
		)
	})
}

// RecordRequest records a finished enrichment request.
// status: "success" or "error".
func RecordRequest(status string) {
	if enrichmentRequestsTotal != nil {
		enrichmentRequestsTotal.WithLabelValues(status).Inc()
	}
}

// RecordError records an enrichment failure by type.
// errorType: "timeout", "auth", "rate_limit", "server_error", "connection",
// "parse", "circuit_open", "http_error".
func RecordError(errorType string) {
	if enrichmentErrorsTotal != nil {
		enrichmentErrorsTotal.WithLabelValues(errorType).Inc()
	}
}

// Timer measures enrichment call duration.
type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration() {
	if t != nil && enrichmentDuration != nil {
		enrichmentDuration.Observe(time.Since(t.start).Seconds())
	}
}
