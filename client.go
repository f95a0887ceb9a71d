package resilience

import (
	"context"
	"errors"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// breakerName labels the client's breaker and limiter in metrics.
const breakerName = "default"

// Client composes the reliability primitives around arbitrary units of
// work, layering them innermost-to-outermost as
//
//	Deduplicator → CircuitBreaker → RateLimiter → retry → work
//
// so an admitted call retries inside its concurrency slot, the breaker
// observes one outcome per logical call, and concurrent identical calls
// share one pass through the whole chain. Every layer is optional except
// retry, which runs with the configured policy (a negative MaxRetries
// disables it). A single Client is safe for concurrent use.
type Client struct {
	retryPolicy    RetryPolicy
	circuitBreaker *CircuitBreaker
	rateLimiter    *RateLimiter
	deduplicator   *Deduplicator

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig
	tracer  trace.Tracer

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		retryPolicy:    RetryPolicy{},
		circuitBreaker: NewCircuitBreaker(CircuitBreakerConfig{}),
		rateLimiter:    nil,
		deduplicator:   nil,
		metrics:        nil,
		logger:         nil,
		debug:          DefaultDebugConfig(),
		tracer:         noopTracer,
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Execute runs work through the breaker, limiter and retry layers.
func (c *Client) Execute(ctx context.Context, work Work) (any, error) {
	return c.execute(ctx, "", work)
}

// ExecuteKeyed is Execute with deduplication: concurrent calls sharing key
// collapse onto one pass through the chain when deduplication is enabled.
func (c *Client) ExecuteKeyed(ctx context.Context, key string, work Work) (any, error) {
	return c.execute(ctx, key, work)
}

func (c *Client) execute(ctx context.Context, key string, work Work) (any, error) {
	start := time.Now()

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	ctx, span := c.startSpan(ctx, key, requestID)

	if c.debugEnabled() {
		c.logger.Debug("starting call", "requestID", requestID, "key", key)
	}

	c.metrics.RecordCallStart()

	v, err := c.chain(key, requestID, start)(ctx, work)

	c.metrics.RecordCallEnd()
	duration := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
		c.metrics.RecordError(classifyErrorType(err))
	}
	c.metrics.RecordCall(outcome, duration)
	endSpan(span, err)

	return v, err
}

// chain assembles the layered execution path for one logical call.
func (c *Client) chain(key, requestID string, start time.Time) func(context.Context, Work) (any, error) {
	next := func(ctx context.Context, work Work) (any, error) {
		policy := c.retryPolicy
		policy.OnRetry = c.retryObserver(ctx, policy.OnRetry, requestID)
		v, err := retryWithPolicy(ctx, work, policy)
		if errors.Is(err, ErrRetryBudgetExceeded) {
			c.metrics.RecordRetryBudgetExceeded()
			addSpanEvent(ctx, "retry.budget_exceeded")
			if c.debugEnabled() && c.debug.LogRetries {
				c.logger.Warn("retry budget exceeded", "requestID", requestID)
			}
			return nil, c.budgetError(requestID, start)
		}
		return v, err
	}

	if c.rateLimiter != nil {
		inner := next
		next = func(ctx context.Context, work Work) (any, error) {
			if c.debugEnabled() && c.debug.LogRateLimit {
				c.logger.Debug("rate limiter admission", "requestID", requestID, "queued", c.rateLimiter.GetQueueLength())
			}
			c.metrics.RecordRateLimiterQueueLength(breakerName, c.rateLimiter.GetQueueLength())
			return c.rateLimiter.Execute(ctx, func(ctx context.Context) (any, error) {
				return inner(ctx, work)
			})
		}
	}

	if c.circuitBreaker != nil {
		inner := next
		next = func(ctx context.Context, work Work) (any, error) {
			v, err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
				return inner(ctx, work)
			})
			c.metrics.RecordCircuitBreakerState(breakerName, c.circuitBreaker.State())
			if errors.Is(err, ErrCircuitOpen) {
				c.metrics.RecordCircuitBreakerRejection(breakerName)
				addSpanEvent(ctx, "circuit_breaker.rejected")
				if c.debugEnabled() && c.debug.LogCircuit {
					c.logger.Warn("circuit breaker open", "requestID", requestID, "state", c.circuitBreaker.State().String())
				}
				return nil, c.breakerError(requestID, start)
			}
			return v, err
		}
	}

	if key != "" && c.deduplicator != nil {
		inner := next
		next = func(ctx context.Context, work Work) (any, error) {
			v, shared, err := c.deduplicator.ExecuteShared(ctx, key, func(ctx context.Context) (any, error) {
				return inner(ctx, work)
			})
			if shared {
				c.metrics.RecordDeduplicationHit()
				addSpanEvent(ctx, "deduplication.shared")
				if c.debugEnabled() && c.debug.LogDedup {
					c.logger.Debug("deduplication hit", "requestID", requestID, "key", key)
				}
			}
			return v, err
		}
	}

	return next
}

// retryObserver instruments the retry loop, chaining any caller-supplied
// OnRetry hook after the client's own logging, metrics and span events.
func (c *Client) retryObserver(ctx context.Context, userHook func(int, error, time.Duration), requestID string) func(int, error, time.Duration) {
	return func(retry int, err error, delay time.Duration) {
		c.metrics.RecordRetry(retry)
		addSpanEvent(ctx, "retry.scheduled",
			attribute.Int("retry.attempt", retry),
			attribute.String("retry.delay", delay.String()),
		)
		if c.debugEnabled() && c.debug.LogRetries {
			c.logger.Info("scheduling retry", "requestID", requestID, "retry", retry, "delay", delay, "error", err.Error())
		}
		if userHook != nil {
			userHook(retry, err, delay)
		}
	}
}

// breakerError wraps the breaker rejection with diagnostic context. The
// sentinel stays reachable through errors.Is so callers can tell "breaker
// rejected" apart from "call failed".
func (c *Client) breakerError(requestID string, start time.Time) *Error {
	return &Error{
		Type:      ErrorTypeCircuitOpen,
		Message:   "circuit breaker is open",
		Cause:     ErrCircuitOpen,
		RequestID: requestID,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
}

// budgetError wraps budget exhaustion the same way breakerError wraps a
// rejection, keeping the sentinel reachable through errors.Is.
func (c *Client) budgetError(requestID string, start time.Time) *Error {
	return &Error{
		Type:      ErrorTypeRetryBudgetExceeded,
		Message:   "retry budget exceeded",
		Cause:     ErrRetryBudgetExceeded,
		RequestID: requestID,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled && c.logger != nil
}

// classifyErrorType maps an error to the taxonomy used by the errors_total
// metric. Work failures are never re-wrapped, so the chain is inspected
// as-is.
func classifyErrorType(err error) string {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return ErrorTypeCircuitOpen
	case errors.Is(err, ErrRetryBudgetExceeded):
		return ErrorTypeRetryBudgetExceeded
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return ErrorTypeRateLimit
		case httpErr.StatusCode >= 500:
			return ErrorTypeServer
		default:
			return ErrorTypeClient
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	return ErrorTypeNetwork
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
