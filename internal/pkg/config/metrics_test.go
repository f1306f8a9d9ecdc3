package config

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*ConfigMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return newConfigMetrics(promauto.With(reg), "test"), reg
}

func TestConfigMetrics_Names(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordLoadTimestamp()
	m.RecordValidationError("poll_interval")
	m.RecordFallback("poll_interval")
	m.SetFallbackActive(true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]bool{}
	for _, f := range families {
		got[f.GetName()] = true
	}
	for _, name := range []string{
		"test_config_load_timestamp",
		"test_config_validation_errors_total",
		"test_config_fallbacks_total",
		"test_config_fallback_active",
	} {
		if !got[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestConfigMetrics_Counters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordValidationError("health_port")
	m.RecordValidationError("health_port")
	m.RecordFallback("health_port")

	if got := testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues("health_port")); got != 2 {
		t.Errorf("validation errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("health_port")); got != 1 {
		t.Errorf("fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("metrics_port")); got != 0 {
		t.Errorf("untouched field = %v, want 0", got)
	}
}

func TestConfigMetrics_FallbackActiveToggle(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetFallbackActive(true)
	if got := testutil.ToFloat64(m.FallbackActive); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	m.SetFallbackActive(false)
	if got := testutil.ToFloat64(m.FallbackActive); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}

func TestConfigMetrics_LoadTimestamp(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordLoadTimestamp()

	if testutil.ToFloat64(m.LoadTimestamp) <= 0 {
		t.Error("load timestamp not set")
	}
}
