package notifier

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outgoing messages with a token bucket so a batch never
// exceeds the relay's sending quota.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows up to burst messages immediately, then refills at
// messagesPerSecond.
//
//	limiter := NewRateLimiter(1.0, 1) // one message per second
func NewRateLimiter(messagesPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(messagesPerSecond), burst)}
}

// Allow blocks until a token is available or the context is done.
func (r *RateLimiter) Allow(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
