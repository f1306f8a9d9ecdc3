// Package circuitbreaker guards the pipeline's external calls (feeds, article
// pages, LLM APIs, SMTP) with github.com/sony/gobreaker.
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"daily-digest/internal/resilience/retry"
)

// stateGauge exports 0 (closed), 1 (half-open) or 2 (open) per breaker.
var stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "circuit_breaker_state",
	Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
}, []string{"name"})

// Config tunes one breaker. The circuit opens once at least MinRequests calls
// were seen in the current Interval and the failure ratio reaches FailureThreshold.
type Config struct {
	Name             string
	MaxRequests      uint32        // trial calls allowed while half-open
	Interval         time.Duration // closed-state counter reset period
	Timeout          time.Duration // open duration before probing
	FailureThreshold float64       // 0.6 trips at 60% failures
	MinRequests      uint32

	// IsFailure decides which errors count toward tripping. Nil counts every
	// error except cancellation.
	IsFailure func(error) bool
}

// DefaultConfig is the baseline every preset starts from.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

func ClaudeAPIConfig() Config { return DefaultConfig("claude-api") }

func OpenAIAPIConfig() Config { return DefaultConfig("openai-api") }

// FeedFetchConfig is lenient and counts only transient errors (5xx, 429,
// network timeouts). Use it with a Group keyed by source.
func FeedFetchConfig() Config {
	c := DefaultConfig("feed-fetch")
	c.IsFailure = retry.IsRetryable
	c.MaxRequests = 5
	c.Interval = time.Minute
	c.Timeout = 2 * time.Minute
	c.FailureThreshold = 0.7
	c.MinRequests = 10
	return c
}

// ArticleExtractConfig is separate from feed fetching because article pages
// fail independently of their feeds. Use it with a Group keyed by host.
func ArticleExtractConfig() Config {
	c := FeedFetchConfig()
	c.Name = "article-extract"
	c.MaxRequests = 3
	c.FailureThreshold = 0.8
	return c
}

// SMTPConfig opens after three straight failures so the rest of a batch fails
// fast instead of waiting on a dead relay per subscriber.
func SMTPConfig() Config {
	return Config{
		Name:             "smtp",
		MaxRequests:      1,
		Interval:         5 * time.Minute,
		Timeout:          2 * time.Minute,
		FailureThreshold: 1.0,
		MinRequests:      3,
	}
}

// CircuitBreaker is a named gobreaker.CircuitBreaker that exports its state.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New builds a breaker. A cancelled context is not counted as a failure, so
// shutting down mid-batch does not trip the circuit.
func New(cfg Config) *CircuitBreaker {
	stateGauge.WithLabelValues(cfg.Name).Set(stateValue(gobreaker.StateClosed))

	return &CircuitBreaker{
		name: cfg.Name,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.Requests >= cfg.MinRequests &&
					float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureThreshold
			},
			IsSuccessful: func(err error) bool {
				if err == nil || errors.Is(err, context.Canceled) {
					return true
				}
				return cfg.IsFailure != nil && !cfg.IsFailure(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				stateGauge.WithLabelValues(name).Set(stateValue(to))
				slog.Warn("circuit breaker state changed",
					slog.String("circuit", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		}),
	}
}

// Execute runs fn unless the circuit is open, in which case it returns
// gobreaker.ErrOpenState without calling fn.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return cb.breaker.Execute(fn)
}

func (cb *CircuitBreaker) State() gobreaker.State { return cb.breaker.State() }

func (cb *CircuitBreaker) Name() string { return cb.name }

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}

// Group hands out one breaker per key, all built from the same Config, so an
// upstream that keeps failing opens only its own circuit. Breakers are named
// "<config name>/<key>".
type Group struct {
	cfg      Config
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewGroup(cfg Config) *Group {
	return &Group{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for key, creating it on first use.
func (g *Group) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[key]
	if !ok {
		cfg := g.cfg
		cfg.Name = g.cfg.Name + "/" + key
		cb = New(cfg)
		g.breakers[key] = cb
	}
	return cb
}
