// Package retry runs an operation again after transient failures, waiting an
// exponentially growing, jittered delay between attempts.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Config describes one retry policy.
type Config struct {
	MaxAttempts    int           // total tries, including the first
	InitialDelay   time.Duration // wait before the second try
	MaxDelay       time.Duration // cap applied before jitter
	Multiplier     float64       // growth factor per attempt
	JitterFraction float64       // extra random wait, as a fraction of the delay (0..1)
}

// DefaultConfig is a general purpose policy: three tries, 1s doubling to 30s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// FeedFetchConfig tolerates flaky publishers: feeds are cheap to re-request.
func FeedFetchConfig() Config {
	c := DefaultConfig()
	c.MaxAttempts = 5
	return c
}

// AIAPIConfig keeps summarization retries short; every attempt is billed.
func AIAPIConfig() Config {
	c := DefaultConfig()
	c.InitialDelay = 2 * time.Second
	c.MaxDelay = 10 * time.Second
	return c
}

// LedgerConfig retries ledger writes quickly. A write that follows a successful
// send must land or the subscriber is mailed twice.
func LedgerConfig() Config {
	return Config{
		MaxAttempts:    4,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// WithBackoff calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. A non-retryable error is returned as is; exhaustion wraps the
// last error. Cancelling ctx aborts the wait between attempts.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}
		if !IsRetryable(err) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := cfg.delay(attempt)
		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", wait),
			slog.Any("error", err))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, err)
}

// delay is the wait after the given failed attempt (1-based).
func (c Config) delay(attempt int) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return addJitter(time.Duration(d), c.JitterFraction)
}

// IsRetryable reports whether err looks transient: network timeouts, refused or
// reset connections, retryable HTTP statuses, and Postgres connection loss,
// serialization failures and deadlocks. Context errors never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientSQLState(pgErr.Code)
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH)
}

// isTransientSQLState covers connection exceptions (class 08), serialization
// failure, deadlock and server shutdown.
func isTransientSQLState(code string) bool {
	switch code {
	case "40001", "40P01", "57P01", "57P02", "57P03":
		return true
	}
	return strings.HasPrefix(code, "08")
}

// HTTPError carries an upstream status code so IsRetryable can classify it.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable is true for 5xx, 429 and 408.
func (e *HTTPError) Retryable() bool {
	switch {
	case e.StatusCode >= 500 && e.StatusCode < 600:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	}
	return false
}

func addJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	fraction = math.Min(fraction, 1.0)
	// #nosec G404 -- backoff jitter does not need a cryptographic source.
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
