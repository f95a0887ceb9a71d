package resilience

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// WithRetryPolicy sets the retry policy used for every call.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.retryPolicy.MaxRetries = n
	}
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryPolicy.InitialDelay = d
	}
}

// WithBackoffFactor sets the backoff multiplier.
func WithBackoffFactor(f float64) Option {
	return func(c *Client) {
		c.retryPolicy.BackoffFactor = f
	}
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryPolicy.MaxDelay = d
	}
}

// WithJitter sets the jitter fraction for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.retryPolicy.Jitter = f
	}
}

// WithBackoffStrategy selects the delay algorithm between retries.
func WithBackoffStrategy(s BackoffStrategy) Option {
	return func(c *Client) {
		c.retryPolicy.Strategy = s
	}
}

// WithRetryBudget caps retries at maxRetries per window across every call
// this client makes.
func WithRetryBudget(maxRetries int, perWindow time.Duration) Option {
	return func(c *Client) {
		c.retryPolicy.Budget = NewRetryBudget(maxRetries, perWindow)
	}
}

// WithSharedRetryBudget attaches an existing retry budget, typically
// shared with other clients talking to the same provider.
func WithSharedRetryBudget(budget *RetryBudget) Option {
	return func(c *Client) {
		c.retryPolicy.Budget = budget
	}
}

// WithShouldRetry sets a custom retry predicate, overriding
// IsRetryableError.
func WithShouldRetry(fn func(error) bool) Option {
	return func(c *Client) {
		c.retryPolicy.ShouldRetry = fn
	}
}

// WithRateLimiter enables rate limiting with the given configuration.
func WithRateLimiter(config RateLimiterConfig) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(config)
	}
}

// WithSharedRateLimiter attaches an existing limiter, typically shared
// with other clients talking to the same provider.
func WithSharedRateLimiter(limiter *RateLimiter) Option {
	return func(c *Client) {
		c.rateLimiter = limiter
	}
}

// WithCircuitBreaker sets the circuit breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithSharedCircuitBreaker attaches an existing breaker, typically shared
// with other clients talking to the same provider.
func WithSharedCircuitBreaker(breaker *CircuitBreaker) Option {
	return func(c *Client) {
		c.circuitBreaker = breaker
	}
}

// WithoutCircuitBreaker disables the breaker installed by default.
func WithoutCircuitBreaker() Option {
	return func(c *Client) {
		c.circuitBreaker = nil
	}
}

// WithDeduplication enables request deduplication for keyed calls.
func WithDeduplication() Option {
	return func(c *Client) {
		c.deduplicator = NewDeduplicator()
	}
}

// WithMetrics enables Prometheus metrics collection on the default
// registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithTracer sets the OpenTelemetry tracer used for per-call spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, c.validateRetryConfig()...)
	errs = append(errs, c.validateRateLimiterConfig()...)
	errs = append(errs, c.validateCircuitBreakerConfig()...)
	errs = append(errs, c.validateDebugConfig()...)

	if len(errs) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errs),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var errs []string

	if c.retryPolicy.InitialDelay < 0 {
		errs = append(errs, "initialDelay must be non-negative")
	}
	if c.retryPolicy.BackoffFactor < 0 {
		errs = append(errs, "backoffFactor must be non-negative")
	}
	if c.retryPolicy.MaxDelay > 0 && c.retryPolicy.MaxDelay < c.retryPolicy.InitialDelay {
		errs = append(errs, "maxDelay must be greater than or equal to initialDelay")
	}
	if c.retryPolicy.Jitter < 0 || c.retryPolicy.Jitter > 1 {
		errs = append(errs, "jitter must be between 0 and 1")
	}
	if c.retryPolicy.MaxRetries > 100 {
		errs = append(errs, "maxRetries > 100 may cause excessive resource usage")
	}
	if b := c.retryPolicy.Budget; b != nil {
		if b.maxRetries <= 0 {
			errs = append(errs, "retryBudget maxRetries must be positive")
		}
		if b.perWindow <= 0 {
			errs = append(errs, "retryBudget perWindow must be positive")
		}
	}

	return errs
}

func (c *Client) validateRateLimiterConfig() []string {
	var errs []string

	if c.rateLimiter != nil {
		if c.rateLimiter.config.MaxRequests <= 0 {
			errs = append(errs, "rateLimiter maxRequests must be positive")
		}
		if c.rateLimiter.config.Window <= 0 {
			errs = append(errs, "rateLimiter window must be positive")
		}
		if c.rateLimiter.config.MaxConcurrent <= 0 {
			errs = append(errs, "rateLimiter maxConcurrent must be positive")
		}
	}

	return errs
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var errs []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			errs = append(errs, "circuitBreaker failureThreshold must be positive")
		}
		if c.circuitBreaker.config.CooldownPeriod <= 0 {
			errs = append(errs, "circuitBreaker cooldownPeriod must be positive")
		}
	}

	return errs
}

func (c *Client) validateDebugConfig() []string {
	var errs []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errs = append(errs, "debug requestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errs = append(errs, "logger must be set when debug is enabled")
		}
	}

	return errs
}
