package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned when the circuit is open and the cooldown has not
// elapsed; callers should treat it as an immediate upstream failure without
// issuing the call.
var ErrOpen = errors.New("circuit breaker open")

// State is the circuit state. Closed passes calls through, Open rejects
// them, HalfOpen lets probe calls decide whether the upstream recovered.
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
		return "half_open"
	}
	return "unknown"
}

// Config holds circuit breaker parameters. Zero values select defaults
// sized for a metered external API: trip after 5 consecutive failures,
// close again after 2 probe successes, cool down for 30 seconds.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Component        string
	OnStateChange    func(from, to State)
}

// CircuitBreaker guards an upstream dependency: repeated failures open the
// circuit so a struggling upstream is not hammered (and, for metered APIs,
// billed) while it recovers.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedSince time.Time

	failureThreshold int
	successThreshold int
	timeout          time.Duration
	component        string
	onStateChange    func(from, to State)
}

// New creates a CircuitBreaker from cfg, applying defaults for unset
// thresholds.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		component:        cfg.Component,
		onStateChange:    cfg.OnStateChange,
	}
}

// Call runs fn if the circuit allows it. An open circuit rejects with
// ErrOpen until the cooldown elapses, then admits one probe in half-open
// state. fn's result feeds the failure and success counters that move the
// circuit between states.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// allow admits or rejects a call, moving Open to HalfOpen once the
// cooldown has passed.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	if time.Since(cb.openedSince) < cb.timeout {
		cb.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOpen, cb.component)
	}
	cb.transition(StateHalfOpen)
	cb.successes = 0
	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.openedSince = time.Now()
		// a failed probe reopens immediately; in closed state the
		// threshold applies
		if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
			cb.transition(StateOpen)
			cb.failures = 0
		}
		return
	}

	cb.failures = 0
	cb.successes++
	if cb.state == StateHalfOpen && cb.successes >= cb.successThreshold {
		cb.transition(StateClosed)
		cb.successes = 0
	}
}

// transition changes state and fires the callback. Caller holds the lock;
// the callback must not call back into the breaker.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

// State returns the current state, for metrics and tests.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
