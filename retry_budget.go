package resilience

import (
	"sync/atomic"
	"time"
)

// RetryBudget caps the total number of retries allowed per time window
// across every call sharing it. Individual callers still back off per
// their policy; the budget is the global guard that keeps a mass outage
// from multiplying load through synchronized retry storms. First attempts
// are never counted, only retries.
//
// The window is a fixed bucket reset lazily on first use after expiry.
// All methods are lock-free and safe for concurrent use.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     int64
	windowStart int64 // unix nanos
}

// NewRetryBudget creates a budget of maxRetries retries per window.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		perWindow:   perWindow,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow consumes one retry from the budget, reporting false when the
// current window's budget is already spent.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&rb.windowStart)

	if now-windowStart >= int64(rb.perWindow) {
		if atomic.CompareAndSwapInt64(&rb.windowStart, windowStart, now) {
			atomic.StoreInt64(&rb.current, 0)
		}
	}

	if atomic.LoadInt64(&rb.current) >= rb.maxRetries {
		return false
	}
	return atomic.AddInt64(&rb.current, 1) <= rb.maxRetries
}

// Stats returns the retries consumed in the current window, the budget
// maximum, and when the window started.
func (rb *RetryBudget) Stats() (current, max int64, windowStart time.Time) {
	return atomic.LoadInt64(&rb.current),
		rb.maxRetries,
		time.Unix(0, atomic.LoadInt64(&rb.windowStart))
}
