package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Error type constants used in Error.Type.
const (
	ErrorTypeNetwork     = "Network"
	ErrorTypeTimeout     = "Timeout"
	ErrorTypeServer      = "Server"
	ErrorTypeClient      = "Client"
	ErrorTypeRateLimit   = "RateLimit"
	ErrorTypeCircuitOpen = "CircuitOpen"
	ErrorTypeValidation  = "Validation"

	ErrorTypeRetryBudgetExceeded = "RetryBudgetExceeded"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state.
	// It is raised solely by the breaker and carries no relation to the
	// underlying dependency's own errors, so callers can tell "breaker
	// rejected" apart from "call failed".
	ErrCircuitOpen = errors.New("resilience: circuit open")

	// ErrRetryBudgetExceeded is returned when a shared retry budget is
	// exhausted. Like ErrCircuitOpen it originates in the resilience
	// layer, never in the wrapped work.
	ErrRetryBudgetExceeded = errors.New("resilience: retry budget exceeded")
)

// HTTPError describes a response from a remote provider that completed at
// the HTTP level but carried a failure status. Callers constructing work
// functions wrap non-2xx responses in an HTTPError so the classifier can
// see the status code.
type HTTPError struct {
	StatusCode int
	Status     string

	// RetryAfter carries the remote's Retry-After hint, when present.
	// The retrier prefers it over the computed backoff delay.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("resilience: http %d %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("resilience: http %d", e.StatusCode)
}

// IsRetryableError determines if an error represents a transient failure
// that might succeed on retry. It returns true for network-level failures
// (timeouts, DNS and connection errors, context deadline expiry), HTTP 429
// and HTTP 500/502/503/504. It returns false for every other 4xx status
// and for errors that are neither network-level nor status-bearing.
// It is pure and safe to call from any goroutine.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// net.Error covers timeouts plus *net.OpError (connection refused,
	// reset) and *net.DNSError.
	var netErr net.Error
	return errors.As(err, &netErr)
}

// retryAfterHint extracts a Retry-After delay from the error chain, if any.
func retryAfterHint(err error) (time.Duration, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter, true
	}
	return 0, false
}

// Error represents a failure produced by the resilience layer itself, with
// diagnostic context attached. Failures of the wrapped work are never
// re-wrapped in an Error: they propagate to the caller as-is so the true
// root cause stays inspectable.
type Error struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
