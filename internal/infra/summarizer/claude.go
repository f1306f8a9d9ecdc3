// Package summarizer turns article text into a structured summary (bullets, overview,
// category, importance score) using Claude or OpenAI, with retry, circuit breaker and
// Prometheus metrics around every call.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/resilience/circuitbreaker"
	"daily-digest/internal/resilience/retry"
)

const providerClaude = "claude"

// DefaultClaudeConfig returns the model parameters used when nothing is configured.
func DefaultClaudeConfig() Config {
	return Config{
		Model:        string(anthropic.ModelClaudeSonnet4_5_20250929),
		MaxTokens:    512,
		Temperature:  0.3,
		Timeout:      60 * time.Second,
		BulletsCount: 3,
	}
}

// Claude summarizes articles with Anthropic's Messages API.
type Claude struct {
	client anthropic.Client
	config Config
	settings
}

// NewClaude creates a Claude summarizer. The SDK's own retries are disabled;
// retries go through the package retry policy instead.
func NewClaude(apiKey string, cfg Config, opts ...Option) *Claude {
	s := newSettings(circuitbreaker.ClaudeAPIConfig(), opts)

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if s.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(s.baseURL))
	}

	slog.Info("claude summarizer ready",
		slog.String("model", cfg.Model),
		slog.Int("bullets", cfg.BulletsCount))

	return &Claude{
		client:   anthropic.NewClient(clientOpts...),
		config:   cfg,
		settings: s,
	}
}

// Summarize returns the structured summary of articleText.
func (c *Claude) Summarize(ctx context.Context, articleText string) (*entity.Summary, error) {
	return c.summarize(ctx, providerClaude, c.config, articleText, c.complete)
}

func (c *Claude) complete(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   int64(c.config.MaxTokens),
		Temperature: anthropic.Float(c.config.Temperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &retry.HTTPError{StatusCode: apiErr.StatusCode, Message: "claude api error"}
		}
		return "", fmt.Errorf("claude api error: %w", err)
	}

	var reply strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			reply.WriteString(tb.Text)
		}
	}
	return reply.String(), nil
}
