package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsEventually(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
	attempts := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
	attempts := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 2 {
		t.Errorf("expected exactly MaxAttempts=2 tries, got %d", attempts)
	}
}

// TestNextDelayNeverOverflows guards the backoff ceiling test: even when
// current is already enormous, NextDelay must clamp to maxDelay instead of
// wrapping into a negative duration.
func TestNextDelayNeverOverflows(t *testing.T) {
	huge := time.Duration(1<<62 - 1)
	got := NextDelay(huge, 2.0, 5*time.Minute)
	if got != 5*time.Minute {
		t.Errorf("expected clamp to maxDelay, got %v", got)
	}
}

func TestNextDelayCapsAtMax(t *testing.T) {
	got := NextDelay(4*time.Second, 2.0, 5*time.Second)
	if got != 5*time.Second {
		t.Errorf("expected cap at maxDelay=5s, got %v", got)
	}
}

func TestBackoffForAttemptMonotonic(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, Jitter: 0}
	d1 := BackoffForAttempt(1, cfg)
	d5 := BackoffForAttempt(5, cfg)
	if d5 <= d1 {
		t.Errorf("expected later attempts to have larger backoff, got d1=%v d5=%v", d1, d5)
	}
}
