package fetcher

import (
	"fmt"
	"time"

	envconfig "daily-digest/pkg/config"
)

// ExtractConfig holds the configuration for article page downloads.
//
// Security settings:
//   - DenyPrivateIPs: blocks URLs resolving to private addresses (SSRF)
//   - MaxBodySize: caps memory used per page
//   - MaxRedirects: stops redirect loops
type ExtractConfig struct {
	// Timeout bounds a single page download.
	// Default: 10s
	Timeout time.Duration

	// MaxBodySize is the maximum HTTP response body size in bytes. It is enforced
	// while reading, not from the Content-Length header.
	// Default: 10485760 (10MB)
	MaxBodySize int64

	// MaxRedirects is the maximum number of HTTP redirects to follow.
	// Default: 5
	MaxRedirects int

	// DenyPrivateIPs rejects URLs that resolve to private, loopback or link-local IPs.
	// Should always be true in production.
	// Default: true
	DenyPrivateIPs bool
}

// DefaultConfig returns the default extraction configuration.
func DefaultConfig() ExtractConfig {
	return ExtractConfig{
		Timeout:        10 * time.Second,
		MaxBodySize:    10 * 1024 * 1024,
		MaxRedirects:   5,
		DenyPrivateIPs: true,
	}
}

// Validate checks if the configuration values are valid and safe.
//
// Validation rules:
//   - Timeout: > 0
//   - MaxBodySize: 1KB-100MB
//   - MaxRedirects: 0-10
func (c *ExtractConfig) Validate() error {
	if err := envconfig.ValidatePositiveDuration(c.Timeout); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}

	minBodySize := int64(1024)
	maxBodySize := int64(100 * 1024 * 1024)
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}

	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}

	return nil
}

// LoadConfigFromEnv loads configuration from environment variables.
// Unset or unparsable variables keep their defaults; the result is validated.
//
// Environment variables:
//   - EXTRACT_TIMEOUT: duration string (default: 10s)
//   - EXTRACT_MAX_BODY_SIZE: integer in bytes (default: 10485760)
//   - EXTRACT_MAX_REDIRECTS: integer (default: 5)
//   - EXTRACT_DENY_PRIVATE_IPS: "true" or "false" (default: true)
func LoadConfigFromEnv() (ExtractConfig, error) {
	def := DefaultConfig()
	cfg := ExtractConfig{
		Timeout:        envconfig.GetEnvDuration("EXTRACT_TIMEOUT", def.Timeout),
		MaxBodySize:    int64(envconfig.GetEnvInt("EXTRACT_MAX_BODY_SIZE", int(def.MaxBodySize))),
		MaxRedirects:   envconfig.GetEnvInt("EXTRACT_MAX_REDIRECTS", def.MaxRedirects),
		DenyPrivateIPs: envconfig.GetEnvBool("EXTRACT_DENY_PRIVATE_IPS", def.DenyPrivateIPs),
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
