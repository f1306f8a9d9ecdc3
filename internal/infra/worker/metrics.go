package worker

import (
	"daily-digest/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the scheduler process.
// It embeds the standard ConfigMetrics for configuration monitoring and adds
// scheduler and dispatch metrics.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp
//   - worker_config_validation_errors_total{field}
//   - worker_config_fallbacks_total{field}
//   - worker_config_fallback_active
//
// Scheduler metrics:
//   - worker_scheduler_ticks_total{status}: idle, triggered, error
//   - worker_scheduler_due_subscribers: subscribers due at the last tick
//   - worker_dispatch_batch_duration_seconds: batch duration histogram
//   - worker_dispatch_outcomes_total{outcome}: per-subscriber outcomes
//   - worker_dispatch_last_batch_timestamp: Unix time of the last completed batch
type WorkerMetrics struct {
	*config.ConfigMetrics

	// SchedulerTicksTotal counts ticks by status.
	SchedulerTicksTotal *prometheus.CounterVec

	// DueSubscribers is the number of due subscribers seen at the last tick.
	DueSubscribers prometheus.Gauge

	// BatchDurationSeconds measures one orchestrator batch.
	// Buckets: 1s, 5s, 30s, 1m, 5m, 15m, 30m, 1h
	BatchDurationSeconds prometheus.Histogram

	// DispatchOutcomesTotal counts per-subscriber outcomes (sent, failed, skipped, ...).
	DispatchOutcomesTotal *prometheus.CounterVec

	// LastBatchTimestamp records the completion time of the last batch.
	LastBatchTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates a WorkerMetrics instance registered with the default registry.
// It must be called at most once per process.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		SchedulerTicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_scheduler_ticks_total",
			Help: "Total number of scheduler ticks by status (idle/triggered/error)",
		}, []string{"status"}),

		DueSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_scheduler_due_subscribers",
			Help: "Number of subscribers whose delivery window was open at the last tick",
		}),

		BatchDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_dispatch_batch_duration_seconds",
			Help:    "Duration of one dispatch batch in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		}),

		DispatchOutcomesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_dispatch_outcomes_total",
			Help: "Total number of per-subscriber dispatch outcomes",
		}, []string{"outcome"}),

		LastBatchTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_dispatch_last_batch_timestamp",
			Help: "Unix timestamp of the last completed dispatch batch",
		}),
	}
}

// RecordTick increments the tick counter for status.
func (m *WorkerMetrics) RecordTick(status string) {
	m.SchedulerTicksTotal.WithLabelValues(status).Inc()
}

// RecordDue sets the number of due subscribers found by the last tick.
func (m *WorkerMetrics) RecordDue(count int) {
	m.DueSubscribers.Set(float64(count))
}

// RecordBatchDuration observes a batch duration in seconds and stamps its completion.
func (m *WorkerMetrics) RecordBatchDuration(seconds float64) {
	m.BatchDurationSeconds.Observe(seconds)
	m.LastBatchTimestamp.SetToCurrentTime()
}

// RecordOutcome increments the outcome counter.
func (m *WorkerMetrics) RecordOutcome(outcome string) {
	m.DispatchOutcomesTotal.WithLabelValues(outcome).Inc()
}
