package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"

	"daily-digest/internal/resilience/retry"
)

var errUpstream = errors.New("upstream down")

func testConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      2,
		Interval:         10 * time.Second,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

func fail(cb *CircuitBreaker, n int, err error) {
	for i := 0; i < n; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, err })
	}
}

/* ───── state machine ───── */

func TestNew_StartsClosed(t *testing.T) {
	cb := New(testConfig("cb-new"))

	if cb.Name() != "cb-new" {
		t.Errorf("Name() = %q", cb.Name())
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed, got %v", cb.State())
	}
	if got := testutil.ToFloat64(stateGauge.WithLabelValues("cb-new")); got != 0 {
		t.Errorf("state gauge = %v, want 0", got)
	}
}

func TestExecute_PassesResultAndError(t *testing.T) {
	cb := New(testConfig("cb-pass"))

	got, err := cb.Execute(func() (interface{}, error) { return "feed", nil })
	if err != nil || got != "feed" {
		t.Fatalf("Execute() = (%v, %v)", got, err)
	}

	_, err = cb.Execute(func() (interface{}, error) { return nil, errUpstream })
	if err != errUpstream {
		t.Errorf("expected the call's own error, got %v", err)
	}
}

func TestExecute_TripsAfterThreshold(t *testing.T) {
	cb := New(testConfig("cb-trip"))

	fail(cb, 5, errUpstream)

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected open after 5/5 failures, got %v", cb.State())
	}
	if got := testutil.ToFloat64(stateGauge.WithLabelValues("cb-trip")); got != 2 {
		t.Errorf("state gauge = %v, want 2", got)
	}

	called := false
	_, err := cb.Execute(func() (interface{}, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if called {
		t.Error("open circuit must not call through")
	}
}

func TestExecute_StaysClosedBelowMinRequests(t *testing.T) {
	cfg := testConfig("cb-min")
	cfg.MinRequests = 10

	cb := New(cfg)
	fail(cb, 9, errUpstream)

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed below MinRequests, got %v", cb.State())
	}
}

func TestExecute_StaysClosedBelowRatio(t *testing.T) {
	cb := New(testConfig("cb-ratio"))

	for i := 0; i < 10; i++ {
		err := errUpstream
		if i%2 == 0 {
			err = nil
		}
		_, _ = cb.Execute(func() (interface{}, error) { return nil, err })
	}

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("50%% failures should not trip a 60%% breaker, got %v", cb.State())
	}
}

func TestExecute_CancellationIsNotAFailure(t *testing.T) {
	cb := New(testConfig("cb-cancel"))

	fail(cb, 10, fmt.Errorf("send: %w", context.Canceled))

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("cancellations tripped the circuit: %v", cb.State())
	}
}

func TestExecute_HalfOpenRecovers(t *testing.T) {
	cb := New(testConfig("cb-half"))
	fail(cb, 5, errUpstream)
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	time.Sleep(80 * time.Millisecond)
	if cb.State() != gobreaker.StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %v", cb.State())
	}

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(func() (interface{}, error) { return nil, nil }); err != nil {
			t.Fatalf("trial call %d: %v", i, err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed after successful trial calls, got %v", cb.State())
	}
	if got := testutil.ToFloat64(stateGauge.WithLabelValues("cb-half")); got != 0 {
		t.Errorf("state gauge = %v, want 0", got)
	}
}

func TestExecute_IsFailureFiltersErrors(t *testing.T) {
	cfg := testConfig("cb-classify")
	cfg.IsFailure = retry.IsRetryable
	cb := New(cfg)

	fail(cb, 10, &retry.HTTPError{StatusCode: 403, Message: "403 Forbidden"})
	fail(cb, 10, &retry.HTTPError{StatusCode: 404, Message: "404 Not Found"})
	if cb.State() != gobreaker.StateClosed {
		t.Fatalf("client errors tripped the circuit: %v", cb.State())
	}

	fail(cb, 10, &retry.HTTPError{StatusCode: 503, Message: "503 Service Unavailable"})
	if cb.State() != gobreaker.StateOpen {
		t.Errorf("expected 503s to open the circuit, got %v", cb.State())
	}
}

/* ───── groups ───── */

func TestGroup_OneBreakerPerKey(t *testing.T) {
	g := NewGroup(testConfig("cb-group"))

	down := g.Get("down.example.com")
	up := g.Get("up.example.com")

	if down != g.Get("down.example.com") {
		t.Error("Get() must return the same breaker for the same key")
	}
	if down.Name() != "cb-group/down.example.com" {
		t.Errorf("Name() = %q", down.Name())
	}

	fail(down, 5, errUpstream)
	if down.State() != gobreaker.StateOpen {
		t.Fatalf("expected open, got %v", down.State())
	}
	if up.State() != gobreaker.StateClosed {
		t.Errorf("other keys must stay closed, got %v", up.State())
	}
	if _, err := up.Execute(func() (interface{}, error) { return "ok", nil }); err != nil {
		t.Errorf("healthy key refused: %v", err)
	}
}

/* ───── presets ───── */

func TestPresets(t *testing.T) {
	tests := []struct {
		cfg          Config
		wantName     string
		wantHalfOpen uint32
		wantMin      uint32
		wantTrip     float64
		wantTimeout  time.Duration
	}{
		{DefaultConfig("x"), "x", 3, 5, 0.6, time.Minute},
		{ClaudeAPIConfig(), "claude-api", 3, 5, 0.6, time.Minute},
		{OpenAIAPIConfig(), "openai-api", 3, 5, 0.6, time.Minute},
		{FeedFetchConfig(), "feed-fetch", 5, 10, 0.7, 2 * time.Minute},
		{ArticleExtractConfig(), "article-extract", 3, 10, 0.8, 2 * time.Minute},
		{SMTPConfig(), "smtp", 1, 3, 1.0, 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			c := tt.cfg
			if c.Name != tt.wantName || c.MaxRequests != tt.wantHalfOpen || c.MinRequests != tt.wantMin ||
				c.FailureThreshold != tt.wantTrip || c.Timeout != tt.wantTimeout {
				t.Errorf("unexpected preset %+v", c)
			}
		})
	}
}

func TestPresets_FetchConfigsCountOnlyTransientErrors(t *testing.T) {
	for _, c := range []Config{FeedFetchConfig(), ArticleExtractConfig()} {
		if c.IsFailure == nil {
			t.Fatalf("%s: IsFailure not set", c.Name)
		}
		if c.IsFailure(&retry.HTTPError{StatusCode: 403}) {
			t.Errorf("%s: 403 counted as failure", c.Name)
		}
		if !c.IsFailure(&retry.HTTPError{StatusCode: 502}) {
			t.Errorf("%s: 502 not counted as failure", c.Name)
		}
	}
}

func TestStateValue(t *testing.T) {
	if stateValue(gobreaker.StateClosed) != 0 || stateValue(gobreaker.StateHalfOpen) != 1 || stateValue(gobreaker.StateOpen) != 2 {
		t.Error("unexpected state mapping")
	}
}
