// Package config loads the application settings: branding and links used in the
// email, digest sizing, collaborator timeouts, SMTP and summarizer credentials,
// and the feed source registry.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"daily-digest/internal/domain/entity"
	envconfig "daily-digest/pkg/config"
)

// Environments in which secrets must be supplied explicitly.
var strictEnvironments = map[string]bool{"production": true, "staging": true}

const (
	developmentSecret = "dev-secret-change-me"
	minSecretLength   = 16
)

// AppConfig holds the application configuration.
type AppConfig struct {
	// AppName appears in the subject line and email header. Default: "AI News Digest"
	AppName string

	// BaseURL is the public address used to build unsubscribe links.
	// Default: "http://localhost:8501"
	BaseURL string

	// Environment is one of development, staging, production. Default: development
	Environment string

	// SecretKey signs unsubscribe tokens. Required outside development.
	SecretKey string

	// FeedSourcesFile overrides the embedded source registry when set.
	FeedSourcesFile string

	// TraceSampleRatio is the fraction of root spans sampled. Default: 1.0
	TraceSampleRatio float64

	Digest     DigestConfig
	Timeouts   TimeoutConfig
	SMTP       SMTPConfig
	Summarizer SummarizerConfig
}

// DigestConfig sizes the aggregation and assembly stages.
type DigestConfig struct {
	// MaxArticlesPerSource caps each feed fetch. Default: 5
	MaxArticlesPerSource int
	// MaxArticleTextChars bounds the text sent to the summarizer. Default: 12000
	MaxArticleTextChars int
	// TopN is the ranking cap. Default: 15
	TopN int
	// TotalMaxArticles is the ceiling across all sections. Default: 12
	TotalMaxArticles int
	// PerTopicCap is the per-section length applied when trimming. Default: 2
	PerTopicCap int
	// BulletsCount is requested from the summarizer. Default: 3
	BulletsCount int
	// Scorer names the ranking function: title_length or importance. Default: title_length
	Scorer string
}

// TimeoutConfig holds per-collaborator request timeouts.
type TimeoutConfig struct {
	// Extract bounds one article extraction. Default: 10s
	Extract time.Duration
	// Summarize bounds one summarizer call. Default: 60s
	Summarize time.Duration
	// Send bounds one SMTP delivery. Default: 30s
	Send time.Duration
}

// SMTPConfig holds the transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	UseTLS   bool
	Username string
	Password string
	From     string
	ReplyTo  string
	// RatePerSecond throttles outgoing messages. Default: 1
	RatePerSecond float64
	// Burst is the limiter bucket size. Default: 1
	Burst int
}

// SummarizerConfig selects and configures the LLM summarizer.
type SummarizerConfig struct {
	// Type is claude, openai or noop. Default: claude
	Type            string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	ClaudeModel     string
	OpenAIModel     string
	MaxTokens       int
	Temperature     float64
}

// LoadAppConfig loads the application configuration from environment variables.
// Unset values take their defaults; Validate decides whether the result is usable.
func LoadAppConfig() (*AppConfig, error) {
	cfg := &AppConfig{
		AppName:          envconfig.GetEnvString("APP_NAME", "AI News Digest"),
		BaseURL:          strings.TrimRight(envconfig.GetEnvString("APP_BASE_URL", "http://localhost:8501"), "/"),
		Environment:      strings.ToLower(envconfig.GetEnvString("APP_ENV", "development")),
		SecretKey:        envconfig.GetEnvString("SECRET_KEY", ""),
		FeedSourcesFile:  envconfig.GetEnvString("FEED_SOURCES_FILE", ""),
		TraceSampleRatio: envconfig.GetEnvFloat("TRACE_SAMPLE_RATIO", 1.0),
		Digest: DigestConfig{
			MaxArticlesPerSource: envconfig.GetEnvInt("MAX_ARTICLES_PER_SOURCE", 5),
			MaxArticleTextChars:  envconfig.GetEnvInt("MAX_ARTICLE_TEXT_CHARS", 12000),
			TopN:                 envconfig.GetEnvInt("DIGEST_TOP_N", 15),
			TotalMaxArticles:     envconfig.GetEnvInt("DIGEST_TOTAL_MAX_ARTICLES", 12),
			PerTopicCap:          envconfig.GetEnvInt("DIGEST_MAX_ARTICLES_PER_TOPIC", 2),
			BulletsCount:         envconfig.GetEnvInt("SUMMARY_BULLETS_COUNT", 3),
			Scorer:               strings.ToLower(envconfig.GetEnvString("DIGEST_SCORER", "title_length")),
		},
		Timeouts: TimeoutConfig{
			Extract:   envconfig.GetEnvDuration("EXTRACT_TIMEOUT", 10*time.Second),
			Summarize: envconfig.GetEnvDuration("SUMMARIZE_TIMEOUT", 60*time.Second),
			Send:      envconfig.GetEnvDuration("SMTP_TIMEOUT", 30*time.Second),
		},
		SMTP: SMTPConfig{
			Host:          envconfig.GetEnvString("SMTP_HOST", "smtp.gmail.com"),
			Port:          envconfig.GetEnvInt("SMTP_PORT", 587),
			UseTLS:        envconfig.GetEnvBool("SMTP_USE_TLS", true),
			Username:      envconfig.GetEnvString("SMTP_USERNAME", envconfig.GetEnvString("SMTP_EMAIL", "")),
			Password:      envconfig.GetEnvString("SMTP_PASSWORD", ""),
			From:          envconfig.GetEnvString("FROM_EMAIL", ""),
			ReplyTo:       envconfig.GetEnvString("REPLY_TO_EMAIL", ""),
			RatePerSecond: envconfig.GetEnvFloat("SMTP_RATE_LIMIT", 1),
			Burst:         envconfig.GetEnvInt("SMTP_RATE_BURST", 1),
		},
		Summarizer: SummarizerConfig{
			Type:            strings.ToLower(envconfig.GetEnvString("SUMMARIZER_TYPE", "claude")),
			AnthropicAPIKey: envconfig.GetEnvString("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:    envconfig.GetEnvString("OPENAI_API_KEY", ""),
			ClaudeModel:     envconfig.GetEnvString("CLAUDE_MODEL", "claude-sonnet-4-5-20250929"),
			OpenAIModel:     envconfig.GetEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens:       envconfig.GetEnvInt("LLM_MAX_TOKENS", 512),
			Temperature:     0.3,
		},
	}

	if cfg.SecretKey == "" && !cfg.Strict() {
		cfg.SecretKey = developmentSecret
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid application configuration: %w", err)
	}
	return cfg, nil
}

// Strict reports whether the environment requires explicit secrets.
func (c *AppConfig) Strict() bool {
	return strictEnvironments[c.Environment]
}

// Validate checks configuration correctness. Every failure is a *entity.ConfigurationError.
func (c *AppConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &entity.ConfigurationError{Key: "APP_BASE_URL", Message: "must be an absolute http(s) URL"}
	}

	if len(c.SecretKey) < minSecretLength {
		return &entity.ConfigurationError{Key: "SECRET_KEY", Message: fmt.Sprintf("must be at least %d bytes", minSecretLength)}
	}

	if c.Strict() {
		if c.SecretKey == developmentSecret {
			return &entity.ConfigurationError{Key: "SECRET_KEY", Message: "required in " + c.Environment}
		}
		if c.SMTP.Password == "" {
			return &entity.ConfigurationError{Key: "SMTP_PASSWORD", Message: "required in " + c.Environment}
		}
		if c.SMTP.From == "" {
			return &entity.ConfigurationError{Key: "FROM_EMAIL", Message: "required in " + c.Environment}
		}
	}

	positives := []struct {
		key   string
		value int
	}{
		{"MAX_ARTICLES_PER_SOURCE", c.Digest.MaxArticlesPerSource},
		{"MAX_ARTICLE_TEXT_CHARS", c.Digest.MaxArticleTextChars},
		{"DIGEST_TOP_N", c.Digest.TopN},
		{"DIGEST_TOTAL_MAX_ARTICLES", c.Digest.TotalMaxArticles},
		{"DIGEST_MAX_ARTICLES_PER_TOPIC", c.Digest.PerTopicCap},
		{"SUMMARY_BULLETS_COUNT", c.Digest.BulletsCount},
		{"SMTP_PORT", c.SMTP.Port},
		{"SMTP_RATE_BURST", c.SMTP.Burst},
		{"LLM_MAX_TOKENS", c.Summarizer.MaxTokens},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return &entity.ConfigurationError{Key: p.key, Message: fmt.Sprintf("must be positive, got %d", p.value)}
		}
	}

	if c.SMTP.RatePerSecond <= 0 {
		return &entity.ConfigurationError{Key: "SMTP_RATE_LIMIT", Message: fmt.Sprintf("must be positive, got %v", c.SMTP.RatePerSecond)}
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return &entity.ConfigurationError{Key: "TRACE_SAMPLE_RATIO", Message: fmt.Sprintf("must be between 0 and 1, got %v", c.TraceSampleRatio)}
	}
	switch c.Digest.Scorer {
	case "title_length", "importance":
	default:
		return &entity.ConfigurationError{Key: "DIGEST_SCORER", Message: "must be title_length or importance, got " + c.Digest.Scorer}
	}

	timeouts := map[string]time.Duration{
		"EXTRACT_TIMEOUT":   c.Timeouts.Extract,
		"SUMMARIZE_TIMEOUT": c.Timeouts.Summarize,
		"SMTP_TIMEOUT":      c.Timeouts.Send,
	}
	for key, d := range timeouts {
		if err := envconfig.ValidateDurationRange(d, time.Second, 5*time.Minute); err != nil {
			return &entity.ConfigurationError{Key: key, Message: err.Error()}
		}
	}

	switch c.Summarizer.Type {
	case "claude":
		if c.Summarizer.AnthropicAPIKey == "" && c.Strict() {
			return &entity.ConfigurationError{Key: "ANTHROPIC_API_KEY", Message: "required when SUMMARIZER_TYPE=claude"}
		}
	case "openai":
		if c.Summarizer.OpenAIAPIKey == "" && c.Strict() {
			return &entity.ConfigurationError{Key: "OPENAI_API_KEY", Message: "required when SUMMARIZER_TYPE=openai"}
		}
	case "noop":
	default:
		return &entity.ConfigurationError{Key: "SUMMARIZER_TYPE", Message: "must be claude, openai or noop, got " + c.Summarizer.Type}
	}

	return nil
}

// UnsubscribeURL returns the unsubscribe link for a signed token.
func (c *AppConfig) UnsubscribeURL(token string) string {
	return c.BaseURL + "/unsubscribe?token=" + url.QueryEscape(token)
}
