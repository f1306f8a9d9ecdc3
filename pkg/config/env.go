// Package config reads typed values from environment variables. Unset or empty
// variables yield the default; unparsable ones yield the default and a warning.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvString returns the variable's value, or defaultValue when it is unset
// or empty. No warning is logged.
//
//	baseURL := GetEnvString("APP_BASE_URL", "http://localhost:8501")
func GetEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt parses a base-10 integer.
//
//	topN := GetEnvInt("DIGEST_TOP_N", 15)
func GetEnvInt(key string, defaultValue int) int {
	return getEnv(key, defaultValue, "integer", strconv.Atoi)
}

// GetEnvFloat parses a float64.
//
//	ratio := GetEnvFloat("TRACE_SAMPLE_RATIO", 1.0)
func GetEnvFloat(key string, defaultValue float64) float64 {
	return getEnv(key, defaultValue, "float", func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetEnvBool accepts the spellings strconv.ParseBool does: 1, t, true, 0, f,
// false and their upper-case forms.
//
//	useTLS := GetEnvBool("SMTP_USE_TLS", true)
func GetEnvBool(key string, defaultValue bool) bool {
	return getEnv(key, defaultValue, "boolean", strconv.ParseBool)
}

// GetEnvDuration parses a Go duration such as "30s" or "1h30m".
//
//	timeout := GetEnvDuration("SMTP_TIMEOUT", 30*time.Second)
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return getEnv(key, defaultValue, "duration", time.ParseDuration)
}

func getEnv[T any](key string, defaultValue T, kind string, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	value, err := parse(raw)
	if err != nil {
		slog.Warn("invalid "+kind+" value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Any("default", defaultValue),
			slog.String("error", err.Error()))
		return defaultValue
	}
	return value
}
