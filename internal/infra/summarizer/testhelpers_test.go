package summarizer_test

import (
	"sync"
	"time"

	"daily-digest/internal/resilience/retry"
)

// stubMetrics records calls for assertions.
type stubMetrics struct {
	mu       sync.Mutex
	statuses []string
	calls    int
}

func (m *stubMetrics) RecordRequest(_, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

func (m *stubMetrics) RecordDuration(string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

func (m *stubMetrics) Statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statuses...)
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:    3,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

const summaryJSON = `{"bullets":["Rates held steady","Inflation eased","Markets rose"],"summary":"The central bank paused.","category":"Economy","importance_score":7}`
