package summarizer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder records summarizer call outcomes.
// Tests inject a stub; production uses PrometheusSummaryMetrics.
type MetricsRecorder interface {
	// RecordRequest counts a finished call. status is "success", "error" or "malformed".
	RecordRequest(provider, status string)

	// RecordDuration records the latency of a single API call.
	RecordDuration(provider string, duration time.Duration)
}

// PrometheusSummaryMetrics implements MetricsRecorder using Prometheus metrics.
type PrometheusSummaryMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	prometheusMetricsInstance *PrometheusSummaryMetrics
	prometheusMetricsOnce     sync.Once
)

// getOrCreateCounterVec gets an existing collector or registers a new one.
func getOrCreateCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		return promauto.NewCounterVec(opts, labels)
	}
	return c
}

// getOrCreateHistogramVec gets an existing collector or registers a new one.
func getOrCreateHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
		return promauto.NewHistogramVec(opts, labels)
	}
	return h
}

// NewPrometheusSummaryMetrics returns the process-wide recorder.
// Uses a singleton to avoid duplicate metric registration in tests.
func NewPrometheusSummaryMetrics() *PrometheusSummaryMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetricsInstance = &PrometheusSummaryMetrics{
			requests: getOrCreateCounterVec(prometheus.CounterOpts{
				Name: "summarizer_requests_total",
				Help: "Total number of summarizer calls by provider and status",
			}, []string{"provider", "status"}),
			duration: getOrCreateHistogramVec(prometheus.HistogramOpts{
				Name:    "summarizer_request_duration_seconds",
				Help:    "Time taken by a single summarizer API call",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			}, []string{"provider"}),
		}
	})
	return prometheusMetricsInstance
}

// RecordRequest implements MetricsRecorder.
func (p *PrometheusSummaryMetrics) RecordRequest(provider, status string) {
	p.requests.WithLabelValues(provider, status).Inc()
}

// RecordDuration implements MetricsRecorder.
func (p *PrometheusSummaryMetrics) RecordDuration(provider string, duration time.Duration) {
	p.duration.WithLabelValues(provider).Observe(duration.Seconds())
}
