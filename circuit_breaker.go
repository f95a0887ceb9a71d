package resilience

import (
	"context"
	"sync"
	"time"
)

// CircuitBreaker stops invoking a chronically failing unit of work for a
// cooldown period, shedding load from the failing dependency. It starts
// closed, trips open after FailureThreshold consecutive failures, and after
// CooldownPeriod lets a single half-open trial through: success closes the
// breaker, failure re-opens it and restarts the cooldown clock.
//
// Each CircuitBreaker owns its state exclusively and is safe for
// concurrent use.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	now    func() time.Time

	mu            sync.Mutex
	state         CircuitState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.CooldownPeriod == 0 {
		config.CooldownPeriod = 30 * time.Second
	}

	return &CircuitBreaker{
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs work under the breaker's state machine. While the breaker
// is open it fails fast with ErrCircuitOpen without invoking work at all.
// A failure that trips the breaker still propagates to the caller.
func (cb *CircuitBreaker) Execute(ctx context.Context, work Work) (any, error) {
	if !cb.allow() {
		return nil, ErrCircuitOpen
	}

	v, err := work(ctx)
	if err != nil {
		cb.recordFailure()
		return nil, err
	}
	cb.recordSuccess()
	return v, nil
}

// State returns the breaker's current state. A breaker whose cooldown has
// elapsed still reports open until the next call triggers the half-open
// transition; the transition is passive.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow reports whether a call may proceed, performing the open → half-open
// transition when the cooldown has elapsed. In half-open state only one
// trial call is admitted at a time.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()

	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		return true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.config.CooldownPeriod {
			notify := cb.transitionLocked(StateHalfOpen)
			cb.trialInFlight = true
			cb.mu.Unlock()
			notify()
			return true
		}
		cb.mu.Unlock()
		return false
	case StateHalfOpen:
		if cb.trialInFlight {
			cb.mu.Unlock()
			return false
		}
		cb.trialInFlight = true
		cb.mu.Unlock()
		return true
	default:
		cb.mu.Unlock()
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	notify := nopNotify

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.openedAt = cb.now()
			notify = cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.trialInFlight = false
		cb.openedAt = cb.now()
		notify = cb.transitionLocked(StateOpen)
	}

	cb.mu.Unlock()
	notify()
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	notify := nopNotify

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.trialInFlight = false
		cb.failures = 0
		notify = cb.transitionLocked(StateClosed)
	}

	cb.mu.Unlock()
	notify()
}

func nopNotify() {}

// transitionLocked moves the breaker to the given state and returns the
// OnStateChange notification to run once the lock is released, so callbacks
// may safely query the breaker. Must be called with cb.mu held.
func (cb *CircuitBreaker) transitionLocked(to CircuitState) func() {
	from := cb.state
	cb.state = to
	if cb.config.OnStateChange == nil || from == to {
		return nopNotify
	}
	return func() { cb.config.OnStateChange(from, to) }
}
