// Package resilience provides fault tolerance primitives for outbound calls
// to the bot-api and web-chat transports: a per-service circuit breaker and
// exponential backoff retry, plus a process-wide registry so every caller
// that targets the same external service shares one breaker instance.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config configures a CircuitBreaker.
type Config struct {
	MaxFailures   int
	Timeout       time.Duration
	HalfOpenMax   int
	OnStateChange func(service string, from, to State)
}

// DefaultConfig matches spec.md §4.3's default circuit breaker thresholds.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	}
}

// CircuitBreaker implements the closed/open/half-open pattern over calls to
// a single named external service.
type CircuitBreaker struct {
	name string

	mu           sync.RWMutex
	config       Config
	state        State
	failures     int
	successes    int
	halfOpenReqs int
	lastFailure  time.Time
}

// New creates a CircuitBreaker for the named service.
func New(name string, cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{name: name, config: cfg, state: StateClosed}
}

// Name returns the service name this breaker protects.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Execute runs fn with circuit breaker protection. ctx is honored only if
// fn itself respects cancellation; Execute does not impose its own timeout.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenReqs = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenReqs >= cb.config.HalfOpenMax {
			return ErrTooManyRequests
		}
		cb.halfOpenReqs++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenMax {
			cb.setState(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenReqs = 0

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, old, newState)
	}
}

// Registry is a process-wide, double-checked-locking singleton map of named
// circuit breakers, so the outbox workers and the bot-api/web-chat adapters
// share the same breaker instance per service rather than each holding their
// own independent failure count.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      Config
}

// NewRegistry creates a Registry that lazily constructs breakers with cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker), cfg: cfg}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb = New(name, r.cfg)
	r.breakers[name] = cb
	return cb
}

// Snapshot returns the current state of every breaker, keyed by name, for
// callers that only need the coarse state string.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.State().String()
	}
	return out
}

// Status is one breaker's state as exposed by the admin debug surface
// ("GET /debug/circuit-breakers", spec.md §6).
type Status struct {
	Service            string
	State              string
	FailureCount       int
	SuccessCount       int
	RetryAfterSeconds  int
}

// StatusSnapshot returns the full per-breaker status the debug surface
// reports, including how many seconds remain until an OPEN breaker allows
// its next HALF_OPEN trial.
func (r *Registry) StatusSnapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.breakers))
	for name, cb := range r.breakers {
		out = append(out, cb.status(name))
	}
	return out
}

func (cb *CircuitBreaker) status(name string) Status {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	retryAfter := 0
	if cb.state == StateOpen {
		remaining := cb.config.Timeout - time.Since(cb.lastFailure)
		if remaining > 0 {
			retryAfter = int(remaining / time.Second)
		}
	}
	return Status{
		Service:           name,
		State:             cb.state.String(),
		FailureCount:      cb.failures,
		SuccessCount:      cb.successes,
		RetryAfterSeconds: retryAfter,
	}
}
