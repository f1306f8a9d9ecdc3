package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/resilience/circuitbreaker"
	"daily-digest/internal/resilience/retry"
	"daily-digest/internal/utils/text"
)

const (
	// minBullets and maxBullets bound the requested bullet count.
	minBullets = 1
	maxBullets = 10

	// defaultMaxInputChars keeps prompts well inside every supported model's context.
	defaultMaxInputChars = 12000
)

// Config holds the model parameters shared by the LLM summarizers.
type Config struct {
	// Model is the provider model identifier.
	Model string

	// MaxTokens is the maximum number of tokens for the API response.
	MaxTokens int

	// Temperature controls sampling. Range 0.0-1.0.
	Temperature float64

	// Timeout bounds one Summarize call including retries.
	Timeout time.Duration

	// BulletsCount is the number of key points requested per article.
	BulletsCount int

	// MaxInputChars truncates the article text before it is sent. Zero means 12000.
	MaxInputChars int
}

// Validate checks the configuration and returns an error if invalid.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %v", c.Temperature)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.BulletsCount < minBullets || c.BulletsCount > maxBullets {
		return fmt.Errorf("bullets count must be between %d and %d, got %d", minBullets, maxBullets, c.BulletsCount)
	}
	if c.MaxInputChars < 0 {
		return fmt.Errorf("max input chars must be non-negative, got %d", c.MaxInputChars)
	}
	return nil
}

func (c Config) maxInputChars() int {
	if c.MaxInputChars == 0 {
		return defaultMaxInputChars
	}
	return c.MaxInputChars
}

// settings holds the collaborators an Option can replace.
type settings struct {
	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
	metrics        MetricsRecorder
	baseURL        string
}

// Option customizes a summarizer.
type Option func(*settings)

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *settings) { s.retryConfig = cfg }
}

// WithCircuitBreaker overrides the circuit breaker.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(s *settings) { s.circuitBreaker = cb }
}

// WithMetrics overrides the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *settings) { s.metrics = m }
}

// WithBaseURL points the client at a different API endpoint (proxies, tests).
func WithBaseURL(u string) Option {
	return func(s *settings) { s.baseURL = u }
}

func newSettings(cb circuitbreaker.Config, opts []Option) settings {
	s := settings{
		retryConfig: retry.AIAPIConfig(),
		metrics:     NewPrometheusSummaryMetrics(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.circuitBreaker == nil {
		s.circuitBreaker = circuitbreaker.New(cb)
	}
	return s
}

// completeFunc sends one prompt to a provider and returns the raw reply text.
// Provider HTTP failures come back as *retry.HTTPError so the retry policy can
// classify them.
type completeFunc func(ctx context.Context, prompt string) (string, error)

// summarize runs complete under the timeout, retry policy and circuit breaker,
// and parses the reply. Every attempt is recorded in metrics.
func (s settings) summarize(ctx context.Context, provider string, cfg Config, articleText string, complete completeFunc) (*entity.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	prompt := buildPrompt(articleText, cfg.BulletsCount, cfg.maxInputChars())
	inputLen := text.CountRunes(articleText)

	var summary *entity.Summary
	err := retry.WithBackoff(ctx, s.retryConfig, func() error {
		out, err := s.circuitBreaker.Execute(func() (interface{}, error) {
			return s.attempt(ctx, provider, cfg.BulletsCount, prompt, inputLen, complete)
		})
		if errors.Is(err, gobreaker.ErrOpenState) {
			slog.WarnContext(ctx, "summarizer circuit open, request rejected",
				slog.String("provider", provider),
				slog.String("breaker", s.circuitBreaker.Name()))
			return fmt.Errorf("%s api unavailable: circuit breaker open", provider)
		}
		if err != nil {
			return err
		}
		summary = out.(*entity.Summary)
		return nil
	})
	if err != nil {
		return nil, &entity.ExternalServiceError{Service: provider, Op: "summarize", Err: err}
	}
	return summary, nil
}

// attempt is a single provider round trip.
func (s settings) attempt(ctx context.Context, provider string, bullets int, prompt string, inputLen int, complete completeFunc) (*entity.Summary, error) {
	log := slog.With(
		slog.String("request_id", uuid.NewString()),
		slog.String("provider", provider))
	log.DebugContext(ctx, "summarization started", slog.Int("input_length", inputLen))

	start := time.Now()
	reply, err := complete(ctx, prompt)
	elapsed := time.Since(start)
	s.metrics.RecordDuration(provider, elapsed)

	if err == nil {
		var summary *entity.Summary
		if summary, err = parseSummary(reply, bullets); err == nil {
			s.metrics.RecordRequest(provider, "success")
			log.DebugContext(ctx, "summarization completed",
				slog.Int("bullets", len(summary.Bullets)),
				slog.Int("importance", summary.ImportanceScore),
				slog.Duration("duration", elapsed))
			return summary, nil
		}
	}

	status := "error"
	if errors.Is(err, ErrMalformedResponse) {
		status = "malformed"
	}
	s.metrics.RecordRequest(provider, status)
	log.WarnContext(ctx, "summarization attempt failed",
		slog.String("status", status),
		slog.Duration("duration", elapsed),
		slog.String("error", err.Error()))
	return nil, err
}
