package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := New("bot-api", Config{MaxFailures: 3, Timeout: time.Minute, HalfOpenMax: 1})
	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failing)
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), failing); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cb := New("web-chat", Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 1})
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful half-open probe, got %s", cb.State())
	}
}

func TestRegistrySharesBreakerPerName(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	a := reg.Get("bot-api")
	b := reg.Get("bot-api")
	if a != b {
		t.Error("expected same breaker instance for same service name")
	}
	c := reg.Get("web-chat-admin")
	if a == c {
		t.Error("expected distinct breaker instances for distinct service names")
	}
}
