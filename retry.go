package resilience

import (
	"context"
	"time"

	internalbackoff "github.com/luckylwl/chat-studio-sub014/internal/backoff"
)

// Defaults applied by RetryPolicy.withDefaults.
const (
	DefaultMaxRetries    = 3
	DefaultInitialDelay  = time.Second
	DefaultBackoffFactor = 2.0
)

// RetryWithBackoff invokes work, retrying transient failures with
// exponentially growing delays. On success the result is returned
// immediately with no further invocations. On failure the policy's
// ShouldRetry predicate (or IsRetryableError when unset) decides whether
// the error is worth retrying; a non-retryable error propagates at once.
// Work is invoked at most MaxRetries+1 times and after the final attempt
// the last underlying error propagates unwrapped, so callers inspecting
// error details still see the true root cause.
//
// With the default strategy the delay before retry n (0-based) is
// InitialDelay * BackoffFactor^n, deterministic unless the policy enables
// Jitter; BackoffDecorrelatedJitter randomizes delays instead. A
// Retry-After hint carried by an HTTPError takes precedence over the
// computed delay. The wait between attempts suspends only this caller and
// is cut short by ctx cancellation. A shared Budget, when configured,
// bounds retries globally: once it is exhausted the loop ends with
// ErrRetryBudgetExceeded instead of waiting.
func RetryWithBackoff[T any](ctx context.Context, work func(ctx context.Context) (T, error), policy RetryPolicy) (T, error) {
	v, err := retryWithPolicy(ctx, func(ctx context.Context) (any, error) {
		return work(ctx)
	}, policy)
	if err != nil {
		var zero T
		return zero, err
	}
	result, _ := v.(T)
	return result, nil
}

// retryWithPolicy is the untyped retry loop shared by RetryWithBackoff and
// the composing Client.
func retryWithPolicy(ctx context.Context, work Work, policy RetryPolicy) (any, error) {
	p := policy.withDefaults()
	calc := calculatorFor(p.Strategy)

	for attempt := 0; ; attempt++ {
		v, err := work(ctx)
		if err == nil {
			return v, nil
		}

		if !p.ShouldRetry(err) {
			return nil, err
		}
		if attempt >= p.MaxRetries {
			return nil, err
		}
		if p.Budget != nil && !p.Budget.Allow() {
			return nil, ErrRetryBudgetExceeded
		}

		delay := calc.Calculate(attempt, p.InitialDelay, p.MaxDelay, p.BackoffFactor, p.Jitter)
		if hint, ok := retryAfterHint(err); ok {
			delay = hint
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// calculatorFor maps a strategy selection to its calculator.
func calculatorFor(strategy BackoffStrategy) *internalbackoff.Calculator {
	switch strategy {
	case BackoffDecorrelatedJitter:
		return internalbackoff.GetDecorrelatedJitterCalculator()
	default:
		return internalbackoff.GetExponentialCalculator()
	}
}

// withDefaults returns a copy of the policy with unset fields filled in.
func (p RetryPolicy) withDefaults() RetryPolicy {
	switch {
	case p.MaxRetries < 0:
		// Negative means retries disabled.
		p.MaxRetries = 0
	case p.MaxRetries == 0:
		p.MaxRetries = DefaultMaxRetries
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = DefaultBackoffFactor
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = IsRetryableError
	}
	return p
}

// sleep suspends the caller for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
