package backoff

import (
	"time"
)

// Calculator provides backoff calculation using a configurable strategy.
// It centralizes delay computation shared by the retrier and the client.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a new backoff calculator with the given strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{
		strategy: strategy,
	}
}

// Calculate computes the backoff duration for the given attempt and
// parameters by delegating to the configured strategy.
func (c *Calculator) Calculate(attempt int, initialDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, initialDelay, maxDelay, multiplier, jitter)
}

// GetStrategy returns the strategy used by this calculator.
func (c *Calculator) GetStrategy() Strategy {
	return c.strategy
}

// GetExponentialCalculator returns a calculator configured with the
// exponential strategy. This is the default used by the retrier.
func GetExponentialCalculator() *Calculator {
	return NewCalculator(ExponentialStrategy{})
}

// GetDecorrelatedJitterCalculator returns a calculator configured with
// AWS-style decorrelated jitter.
func GetDecorrelatedJitterCalculator() *Calculator {
	return NewCalculator(DecorrelatedJitterStrategy{})
}
