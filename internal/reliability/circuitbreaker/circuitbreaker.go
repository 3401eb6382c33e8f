package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the circuit rejects calls
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state
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
	default:
		return "half_open"
	}
}

// CircuitBreaker provides fast-fail behavior when a dependency fails repeatedly.
// While half open a single probe is let through at a time.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failures         int32
	successes        int32
	openedAt         time.Time
	probing          bool
	failureThreshold int32
	successThreshold int32
	timeout          time.Duration
	onStateChange    func(from, to State)
	neutral          func(error) bool
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(failureThreshold, successThreshold int32, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		neutral:          func(err error) bool { return errors.Is(err, context.Canceled) },
		now:              time.Now,
	}
}

// SetStateChangeCallback registers a callback for state transitions.
// It runs outside the breaker lock.
func (cb *CircuitBreaker) SetStateChangeCallback(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Neutral marks errors that Execute returns without counting a failure or a
// success. Caller cancellation is neutral by default.
func (cb *CircuitBreaker) Neutral(fn func(error) bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.neutral = func(err error) bool {
		return errors.Is(err, context.Canceled) || fn(err)
	}
}

// RecordSuccess closes a half open circuit once enough probes pass
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var from State
	changed := false
	switch cb.state {
	case StateHalfOpen:
		cb.probing = false
		cb.successes++
		if cb.successes >= cb.successThreshold {
			from, changed = cb.transitionLocked(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
	cb.mu.Unlock()
	cb.notify(from, StateClosed, changed)
}

// RecordFailure trips a closed circuit at the threshold and reopens a half
// open one immediately
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var from State
	changed := false
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			from, changed = cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		from, changed = cb.transitionLocked(StateOpen)
	}
	cb.mu.Unlock()
	cb.notify(from, StateOpen, changed)
}

// AllowRequest reports whether a call may go through now. An open circuit
// turns half open once the timeout has passed since it tripped.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	var from State
	changed := false
	allowed := false
	switch cb.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) > cb.timeout {
			from, changed = cb.transitionLocked(StateHalfOpen)
			cb.probing = true
			allowed = true
		}
	case StateHalfOpen:
		if !cb.probing {
			cb.probing = true
			allowed = true
		}
	}
	cb.mu.Unlock()
	cb.notify(from, StateHalfOpen, changed)
	return allowed
}

// Execute runs fn when the circuit allows it and records the outcome
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.AllowRequest() {
		return ErrOpen
	}
	err := fn()
	switch {
	case err == nil:
		cb.RecordSuccess()
	case cb.isNeutral(err):
		cb.release()
	default:
		cb.RecordFailure()
	}
	return err
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) isNeutral(err error) bool {
	cb.mu.Lock()
	neutral := cb.neutral
	cb.mu.Unlock()
	return neutral != nil && neutral(err)
}

// release frees the half open probe slot without a verdict
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) transitionLocked(to State) (State, bool) {
	from := cb.state
	if from == to {
		return from, false
	}
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	cb.probing = false
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	return from, true
}

func (cb *CircuitBreaker) notify(from, to State, changed bool) {
	if !changed {
		return
	}
	cb.mu.Lock()
	fn := cb.onStateChange
	cb.mu.Unlock()
	if fn != nil {
		fn(from, to)
	}
}
