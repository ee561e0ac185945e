package service

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	pipelineRunsTotal *prometheus.CounterVec

	pipelineRunDuration prometheus.Histogram

	reportsProcessedTotal prometheus.Counter

	indicatorsExtractedTotal *prometheus.CounterVec

	extractionErrorsTotal prometheus.Counter

	campaignsDetected prometheus.Gauge
)

// InitMetrics registers the pipeline's Prometheus metrics. Call once at
// application startup; calls are ignored afterwards.
func InitMetrics() {
	metricsOnce.Do(func() {
		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatlens_pipeline_runs_total",
				Help: "Total pipeline runs by result (success, failure, rejected)",
			},
			[]string{"result"},
		)

		pipelineRunDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "threatlens_pipeline_run_duration_seconds",
				Help:    "Duration of full pipeline runs in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
		)

		reportsProcessedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "threatlens_reports_processed_total",
				Help: "Total reports processed across all pipeline runs",
			},
		)

		indicatorsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatlens_indicators_extracted_total",
				Help: "Total indicators extracted by type",
			},
			[]string{"type"},
		)

		extractionErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "threatlens_extraction_errors_total",
				Help: "Total per-report extraction failures",
			},
		)

		campaignsDetected = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "threatlens_campaigns_detected",
				Help: "Campaigns produced by the latest correlation pass",
			},
		)
	})
}

func recordRun(result string, elapsed time.Duration) {
	if pipelineRunsTotal != nil {
		pipelineRunsTotal.WithLabelValues(result).Inc()
	}
	if pipelineRunDuration != nil && result != "rejected" {
		pipelineRunDuration.Observe(elapsed.Seconds())
	}
}

func recordReportProcessed() {
	if reportsProcessedTotal != nil {
		reportsProcessedTotal.Inc()
	}
}

func recordIndicator(indicatorType string) {
	if indicatorsExtractedTotal != nil {
		indicatorsExtractedTotal.WithLabelValues(indicatorType).Inc()
	}
}

func recordExtractionError() {
	if extractionErrorsTotal != nil {
		extractionErrorsTotal.Inc()
	}
}

func recordCampaignCount(n int) {
	if campaignsDetected != nil {
		campaignsDetected.Set(float64(n))
	}
}
