package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy defines the interface for backoff calculation algorithms.
type Strategy interface {
	// Calculate returns the backoff duration for the given attempt number
	// and parameters. Attempt 0 is the delay before the first retry.
	// A maxDelay of zero or less means the delay is uncapped.
	Calculate(attempt int, initialDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration
}

// ExponentialStrategy implements exponential backoff with optional uniform
// jitter. With jitter 0 the sequence initialDelay * multiplier^attempt is
// fully deterministic and reproducible, which is what tests rely on.
type ExponentialStrategy struct{}

// Calculate implements the Strategy interface.
func (s ExponentialStrategy) Calculate(attempt int, initialDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	// An uncapped policy still needs an overflow ceiling: a float→Duration
	// overflow must saturate, never collapse to zero or negative.
	ceiling := maxDelay
	if ceiling <= 0 {
		ceiling = time.Duration(math.MaxInt64)
	}

	delay := time.Duration(float64(initialDelay) * pow(multiplier, attempt))
	if delay < 0 || delay > ceiling {
		delay = ceiling
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		jitterAmount := time.Duration(float64(delay) * jitter * rand.Float64())
		if jitterAmount < 0 || delay > ceiling-jitterAmount {
			delay = ceiling
		} else {
			delay += jitterAmount
		}
	}
	return delay
}

// DecorrelatedJitterStrategy implements decorrelated jitter as per the AWS
// architecture blog. It provides smoother tail latencies than exponential
// jitter when many callers retry against the same dependency.
type DecorrelatedJitterStrategy struct{}

// Calculate implements the Strategy interface for decorrelated jitter.
func (s DecorrelatedJitterStrategy) Calculate(attempt int, initialDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	// Formula: random_between(base, min(cap, base * 3^attempt)), a
	// stateless variant of random_between(base, previous_delay * 3).
	if attempt <= 0 {
		return initialDelay
	}

	// Prevent overflow by limiting attempt
	if attempt > 10 {
		attempt = 10
	}

	ceiling := maxDelay
	if ceiling <= 0 {
		ceiling = time.Duration(math.MaxInt64)
	}

	base := float64(initialDelay)
	upper := base * pow(3.0, attempt)

	if upper > float64(ceiling) || upper < 0 {
		upper = float64(ceiling)
	}
	if upper < base {
		upper = base
	}

	delay := base + rand.Float64()*(upper-base)

	result := time.Duration(delay)
	if result < 0 || result > ceiling {
		result = ceiling
	}

	return result
}

// clampJitter ensures jitter is within valid bounds [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
