package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"daily-digest/internal/pkg/config"
	envconfig "daily-digest/pkg/config"
)

// WorkerConfig is the scheduler process configuration. Every field has a
// default, and LoadConfigFromEnv replaces invalid values with it, so the
// process always starts. Call Validate afterwards to catch combinations a
// single-field check cannot see, such as colliding ports.
type WorkerConfig struct {
	PollInterval time.Duration // between ticks, 10s..10m

	// DueOnly restricts a triggered batch to the subscribers whose window is
	// open. Otherwise one due subscriber triggers a batch over every eligible
	// subscriber not yet sent today.
	DueOnly bool

	// MaxSkipsPerDay bounds the empty-content attempts recorded for one
	// subscriber and day. Zero disables the limit; at most 100.
	MaxSkipsPerDay int

	// Ports are unprivileged (1024..65535). HealthPort also carries the
	// unsubscribe routes.
	HealthPort  int
	MetricsPort int
}

// DefaultConfig returns a WorkerConfig with default values.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:   60 * time.Second,
		DueOnly:        false,
		MaxSkipsPerDay: 0,
		HealthPort:     9091,
		MetricsPort:    9090,
	}
}

// Validate reports every invalid field at once.
func (c *WorkerConfig) Validate() error {
	var errs []error
	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	check("poll interval", validatePollInterval(c.PollInterval))
	check("max skips per day", validateMaxSkips(c.MaxSkipsPerDay))
	check("health port", validatePort(c.HealthPort))
	check("metrics port", validatePort(c.MetricsPort))
	if c.MetricsPort == c.HealthPort {
		errs = append(errs, fmt.Errorf("metrics port: must differ from health port %d", c.HealthPort))
	}

	return errors.Join(errs...)
}

func validatePollInterval(d time.Duration) error {
	return envconfig.ValidateDurationRange(d, 10*time.Second, 10*time.Minute)
}

func validateMaxSkips(v int) error {
	return config.ValidateIntRange(v, 0, 100)
}

func validatePort(v int) error {
	return config.ValidateIntRange(v, 1024, 65535)
}

// LoadConfigFromEnv reads POLL_INTERVAL, DISPATCH_DUE_ONLY, MAX_SKIPS_PER_DAY,
// HEALTH_PORT and METRICS_PORT. A missing variable keeps the default; an
// unparsable or out-of-range one also keeps the default, with a warning and a
// fallback metric. The error is always nil.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	record := func(field, label string, fb config.Fallback) {
		if !fb.Applied {
			return
		}
		fallbackApplied = true
		metrics.RecordValidationError(label)
		metrics.RecordFallback(label)
		logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", fb.Warning))
	}

	interval := config.LoadEnvDuration("POLL_INTERVAL", cfg.PollInterval, validatePollInterval)
	cfg.PollInterval = interval.Value
	record("PollInterval", "poll_interval", interval.Fallback)

	dueOnly := config.LoadEnvBool("DISPATCH_DUE_ONLY", cfg.DueOnly)
	cfg.DueOnly = dueOnly.Value
	record("DueOnly", "dispatch_due_only", dueOnly.Fallback)

	ints := []struct {
		key, field, label string
		dst               *int
		validate          func(int) error
	}{
		{"MAX_SKIPS_PER_DAY", "MaxSkipsPerDay", "max_skips_per_day", &cfg.MaxSkipsPerDay, validateMaxSkips},
		{"HEALTH_PORT", "HealthPort", "health_port", &cfg.HealthPort, validatePort},
		{"METRICS_PORT", "MetricsPort", "metrics_port", &cfg.MetricsPort, validatePort},
	}
	for _, f := range ints {
		r := config.LoadEnvInt(f.key, *f.dst, f.validate)
		*f.dst = r.Value
		record(f.field, f.label, r.Fallback)
	}

	metrics.SetFallbackActive(fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
