package notifier

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("allows within burst", func(t *testing.T) {
		limiter := NewRateLimiter(2.0, 5)
		start := time.Now()
		for i := 0; i < 5; i++ {
			if err := limiter.Allow(context.Background()); err != nil {
				t.Fatalf("request %d: unexpected error %v", i, err)
			}
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("burst requests should not block, took %v", elapsed)
		}
	})

	t.Run("blocks beyond rate", func(t *testing.T) {
		limiter := NewRateLimiter(1.0, 1)
		if err := limiter.Allow(context.Background()); err != nil {
			t.Fatalf("first request should succeed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		if err := limiter.Allow(ctx); err == nil {
			t.Error("expected the second request to exceed the deadline")
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		limiter := NewRateLimiter(0.1, 1)
		_ = limiter.Allow(context.Background())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := limiter.Allow(ctx); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
