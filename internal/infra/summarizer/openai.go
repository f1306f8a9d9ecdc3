package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/resilience/circuitbreaker"
	"daily-digest/internal/resilience/retry"
)

const providerOpenAI = "openai"

// DefaultOpenAIConfig returns the model parameters used when nothing is configured.
func DefaultOpenAIConfig() Config {
	return Config{
		Model:        openai.GPT4oMini,
		MaxTokens:    512,
		Temperature:  0.3,
		Timeout:      60 * time.Second,
		BulletsCount: 3,
	}
}

// OpenAI summarizes articles with the Chat Completions API in JSON mode.
type OpenAI struct {
	client *openai.Client
	config Config
	settings
}

// NewOpenAI creates an OpenAI summarizer.
func NewOpenAI(apiKey string, cfg Config, opts ...Option) *OpenAI {
	s := newSettings(circuitbreaker.OpenAIAPIConfig(), opts)

	clientCfg := openai.DefaultConfig(apiKey)
	if s.baseURL != "" {
		clientCfg.BaseURL = s.baseURL
	}

	slog.Info("openai summarizer ready",
		slog.String("model", cfg.Model),
		slog.Int("bullets", cfg.BulletsCount))

	return &OpenAI{
		client:   openai.NewClientWithConfig(clientCfg),
		config:   cfg,
		settings: s,
	}
}

// Summarize returns the structured summary of articleText.
func (o *OpenAI) Summarize(ctx context.Context, articleText string) (*entity.Summary, error) {
	return o.summarize(ctx, providerOpenAI, o.config, articleText, o.complete)
}

// complete asks for a JSON object response so the reply parses without
// stripping prose around it.
func (o *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.config.Model,
		MaxTokens:   o.config.MaxTokens,
		Temperature: float32(o.config.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
	)
	switch {
	case errors.As(err, &apiErr):
		return "", &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	case errors.As(err, &reqErr):
		return "", &retry.HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: "openai request error"}
	case err != nil:
		return "", fmt.Errorf("openai api error: %w", err)
	case len(resp.Choices) == 0:
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
