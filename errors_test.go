package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// timeoutError is a minimal net.Error for classifier tests.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsRetryableErrorNil(t *testing.T) {
	if IsRetryableError(nil) {
		t.Error("nil error should not be retryable")
	}
}

func TestIsRetryableErrorStatusCodes(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{501, false},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{418, false},
	}

	for _, tt := range tests {
		err := &HTTPError{StatusCode: tt.status}
		if got := IsRetryableError(err); got != tt.retryable {
			t.Errorf("IsRetryableError(HTTPError{%d}) = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestIsRetryableErrorWrappedStatus(t *testing.T) {
	err := fmt.Errorf("fetching completion: %w", &HTTPError{StatusCode: 503})
	if !IsRetryableError(err) {
		t.Error("wrapped 503 should be retryable")
	}

	err = fmt.Errorf("fetching completion: %w", &HTTPError{StatusCode: 404})
	if IsRetryableError(err) {
		t.Error("wrapped 404 should not be retryable")
	}
}

func TestIsRetryableErrorNetwork(t *testing.T) {
	if !IsRetryableError(timeoutError{}) {
		t.Error("net.Error timeout should be retryable")
	}

	dnsErr := &net.DNSError{Err: "no such host", Name: "api.example.com"}
	if !IsRetryableError(dnsErr) {
		t.Error("DNS failure should be retryable")
	}

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if !IsRetryableError(opErr) {
		t.Error("connection failure should be retryable")
	}
}

func TestIsRetryableErrorContext(t *testing.T) {
	if !IsRetryableError(context.DeadlineExceeded) {
		t.Error("deadline expiry should be retryable")
	}
	if IsRetryableError(context.Canceled) {
		t.Error("cancellation should not be retryable")
	}
}

func TestIsRetryableErrorOpaque(t *testing.T) {
	if IsRetryableError(errors.New("malformed provider config")) {
		t.Error("opaque errors should not be retryable")
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &HTTPError{StatusCode: 503, Status: "Service Unavailable"}
	want := "resilience: http 503 Service Unavailable"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = &HTTPError{StatusCode: 429}
	if err.Error() != "resilience: http 429" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRetryAfterHint(t *testing.T) {
	if _, ok := retryAfterHint(errors.New("plain")); ok {
		t.Error("plain error should carry no hint")
	}

	err := fmt.Errorf("call failed: %w", &HTTPError{StatusCode: 429, RetryAfter: 2 * time.Second})
	hint, ok := retryAfterHint(err)
	if !ok || hint != 2*time.Second {
		t.Errorf("retryAfterHint = %v, %v; want 2s, true", hint, ok)
	}

	if _, ok := retryAfterHint(&HTTPError{StatusCode: 429}); ok {
		t.Error("zero RetryAfter should carry no hint")
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("connection reset")
	err := &Error{
		Type:       ErrorTypeNetwork,
		Message:    "call failed",
		Cause:      cause,
		RequestID:  "req-1",
		Attempt:    2,
		MaxRetries: 3,
	}

	msg := err.Error()
	for _, fragment := range []string{"Network", "call failed", "connection reset", "req-1", "attempt 2/3"} {
		if !strings.Contains(msg, fragment) {
			t.Errorf("Error() = %q missing %q", msg, fragment)
		}
	}

	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
	if !errors.Is(err, &Error{Type: ErrorTypeNetwork}) {
		t.Error("Is should match on error type")
	}
	if errors.Is(err, &Error{Type: ErrorTypeClient}) {
		t.Error("Is should not match a different type")
	}
}

func TestErrorDebugInfo(t *testing.T) {
	var nilErr *Error
	if nilErr.DebugInfo() != "Error: <nil>" {
		t.Errorf("nil DebugInfo = %q", nilErr.DebugInfo())
	}

	err := &Error{
		Type:      ErrorTypeCircuitOpen,
		Message:   "circuit breaker is open",
		Cause:     ErrCircuitOpen,
		RequestID: "req-2",
		Timestamp: time.Now(),
		Duration:  5 * time.Millisecond,
	}
	info := err.DebugInfo()
	for _, fragment := range []string{"CircuitOpen", "req-2", "Duration", "Cause"} {
		if !strings.Contains(info, fragment) {
			t.Errorf("DebugInfo missing %q:\n%s", fragment, info)
		}
	}
}
