package resilience

import (
	"context"
	"time"
)

// Work is a unit of work: an asynchronous operation with its arguments
// already bound by the caller. The resilience layer only decides whether
// and when to invoke it; it never inspects or transforms the result.
type Work func(ctx context.Context) (any, error)

// Executor is anything that can run a unit of work with its own contract
// added. CircuitBreaker, RateLimiter and Client all satisfy it.
type Executor interface {
	Execute(ctx context.Context, work Work) (any, error)
}

// RetryPolicy configures retry-with-backoff behavior. The zero value is
// usable; unset fields fall back to the stated defaults.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retries after the initial
	// attempt, so work runs at most MaxRetries+1 times. Zero means the
	// default of 3; a negative value disables retries.
	MaxRetries int

	// InitialDelay is the delay before the first retry. Default 1s.
	InitialDelay time.Duration

	// BackoffFactor multiplies the delay after each retry. Default 2.
	BackoffFactor float64

	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration

	// Jitter adds up to Jitter*delay of random extra delay (0 to 1).
	// Zero keeps the base sequence fully deterministic, which matters
	// for thundering-herd behavior under concurrent retries: callers
	// retrying in lockstep stay in lockstep unless jitter is enabled.
	// Ignored by BackoffDecorrelatedJitter, which is randomized by
	// construction.
	Jitter float64

	// Strategy selects the delay algorithm. Default BackoffExponential.
	Strategy BackoffStrategy

	// Budget, when set, caps how many retries may happen per window
	// across every call sharing it. An exhausted budget ends the retry
	// loop with ErrRetryBudgetExceeded.
	Budget *RetryBudget

	// ShouldRetry overrides the default classifier (IsRetryableError)
	// for deciding whether a failure is worth retrying.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry with the 1-based retry number,
	// the error that triggered it and the delay about to be applied.
	OnRetry func(retry int, err error, delay time.Duration)
}

// BackoffStrategy selects the algorithm computing the delay between
// retries.
type BackoffStrategy int

const (
	// BackoffExponential grows the delay as InitialDelay * BackoffFactor^n
	// with optional uniform jitter on top. The default.
	BackoffExponential BackoffStrategy = iota

	// BackoffDecorrelatedJitter picks each delay at random between
	// InitialDelay and an exponentially growing upper bound, smoothing
	// retry herds when many callers fail together.
	BackoffDecorrelatedJitter
)

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker open. Default 5.
	FailureThreshold int

	// CooldownPeriod is how long the breaker stays open before allowing
	// a half-open trial call. Default 30s.
	CooldownPeriod time.Duration

	// OnStateChange, if set, is called after every state transition.
	OnStateChange func(from, to CircuitState)
}

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase name of the state.
func (s CircuitState) String() string {
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

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	// MaxRequests is the number of invocations allowed to start within
	// any sliding Window. Default 10.
	MaxRequests int

	// Window is the length of the sliding window. Default 1s.
	Window time.Duration

	// MaxConcurrent caps simultaneously running invocations. Defaults
	// to MaxRequests.
	MaxConcurrent int
}

// Option represents a Client configuration option.
type Option func(*Client)
