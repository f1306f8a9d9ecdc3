// Package config loads process settings fail-open: a missing variable yields its
// default, and a malformed or out-of-range one yields its default plus a warning,
// so a typo in a deployment manifest degrades the scheduler instead of stopping it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Fallback reports whether a default replaced a configured value, and why.
type Fallback struct {
	Applied bool
	Warning string
}

// Result is a loaded value and its fallback status.
type Result[T any] struct {
	Value T
	Fallback
}

// LoadEnvDuration loads a duration such as "60s" or "5m".
func LoadEnvDuration(key string, def time.Duration, validate func(time.Duration) error) Result[time.Duration] {
	return load(key, def, time.ParseDuration, validate)
}

// LoadEnvInt loads a base-10 integer.
func LoadEnvInt(key string, def int, validate func(int) error) Result[int] {
	return load(key, def, strconv.Atoi, validate)
}

// LoadEnvBool loads a boolean accepted by strconv.ParseBool.
func LoadEnvBool(key string, def bool) Result[bool] {
	return load(key, def, strconv.ParseBool, nil)
}

func load[T any](key string, def T, parse func(string) (T, error), validate func(T) error) Result[T] {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return Result[T]{Value: def}
	}

	v, err := parse(raw)
	if err == nil && validate != nil {
		err = validate(v)
	}
	if err != nil {
		return Result[T]{
			Value: def,
			Fallback: Fallback{
				Applied: true,
				Warning: fmt.Sprintf("invalid %s=%q: %v, using default %v", key, raw, err, def),
			},
		}
	}
	return Result[T]{Value: v}
}
