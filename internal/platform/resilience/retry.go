package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff retry.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, adds randomness
}

// DefaultRetryConfig is a capped exponential backoff with jitter: five
// attempts, 1s initial delay doubling up to 5 minutes, ±10% jitter. The
// outbox worker does not use it; it computes its own backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry executes fn with exponential backoff, stopping early on ctx
// cancellation.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, cfg.Jitter)):
			}
			delay = NextDelay(delay, cfg.Multiplier, cfg.MaxDelay)
		}
	}
	return lastErr
}

// NextDelay computes the next backoff delay, capping at maxDelay and
// guarding against float64 overflow when current is already large: once
// current*multiplier would exceed maxDelay (or overflow time.Duration's
// range entirely), it returns maxDelay directly rather than risking a
// negative or wrapped duration.
func NextDelay(current time.Duration, multiplier float64, maxDelay time.Duration) time.Duration {
	if current >= maxDelay {
		return maxDelay
	}
	// current * multiplier > maxDelay, tested via division to avoid
	// overflowing float64/time.Duration when current is near its max.
	if multiplier <= 0 || float64(current) > float64(maxDelay)/multiplier {
		return maxDelay
	}
	next := time.Duration(float64(current) * multiplier)
	if next <= 0 || next > maxDelay {
		return maxDelay
	}
	return next
}

// BackoffForAttempt computes the delay before retry attempt n (1-indexed)
// from a retry count alone, without needing to track the running delay
// across process restarts.
func BackoffForAttempt(attempt int, cfg RetryConfig) time.Duration {
	delay := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = NextDelay(delay, cfg.Multiplier, cfg.MaxDelay)
	}
	return addJitter(delay, cfg.Jitter)
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
