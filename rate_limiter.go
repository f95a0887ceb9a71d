package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds how many invocations may start within a sliding time
// window and how many may run concurrently. Excess callers queue and are
// dispatched strictly in arrival order as capacity frees up, either because
// a running call settles or because the window advances. Queued calls are
// never dropped; a queued caller whose context is cancelled before it
// starts releases its queue slot without side effects.
//
// The window is a true rolling window over invocation start times rather
// than a fixed bucket, so there is no burst-at-boundary pathology: at most
// MaxRequests calls start within any Window-length span.
type RateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time

	mu         sync.Mutex
	starts     []time.Time // start timestamps inside the window, oldest first
	running    int
	queue      []*limiterWaiter
	timerArmed bool
}

// limiterWaiter is one queued caller.
type limiterWaiter struct {
	ready     chan struct{} // closed on admission
	admitted  bool
	startedAt time.Time // window entry recorded at admission
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.MaxRequests <= 0 {
		config.MaxRequests = 10
	}
	if config.Window <= 0 {
		config.Window = time.Second
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = config.MaxRequests
	}

	return &RateLimiter{
		config: config,
		now:    time.Now,
	}
}

// Execute runs work as soon as the limiter admits it. The call's start
// timestamp is recorded and its concurrency slot held until work settles.
func (rl *RateLimiter) Execute(ctx context.Context, work Work) (any, error) {
	if err := rl.acquire(ctx); err != nil {
		return nil, err
	}
	defer rl.release()
	return work(ctx)
}

// GetQueueLength returns the number of callers currently waiting for
// admission.
func (rl *RateLimiter) GetQueueLength() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.queue)
}

// Reset clears the limiter's window bookkeeping and drains the queue by
// re-dispatching it against the now-empty window. Intended for test
// isolation: in-flight work is unaffected, only pending bookkeeping is
// flushed.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.starts = nil
	rl.dispatchLocked()
}

// acquire blocks until the caller is admitted or ctx is done.
func (rl *RateLimiter) acquire(ctx context.Context) error {
	rl.mu.Lock()
	if len(rl.queue) == 0 && rl.admitNowLocked() {
		rl.mu.Unlock()
		return nil
	}

	w := &limiterWaiter{ready: make(chan struct{})}
	rl.queue = append(rl.queue, w)
	rl.scheduleWakeLocked()
	rl.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		rl.abandon(w)
		return ctx.Err()
	}
}

// abandon undoes a queued caller's bookkeeping after its context ends. If
// admission raced the cancellation, both the concurrency slot and the
// window entry recorded for the caller are returned, since the work never
// ran.
func (rl *RateLimiter) abandon(w *limiterWaiter) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if w.admitted {
		rl.running--
		rl.removeStartLocked(w.startedAt)
		rl.dispatchLocked()
		return
	}
	rl.removeWaiterLocked(w)
}

// release frees the caller's concurrency slot and dispatches the queue.
func (rl *RateLimiter) release() {
	rl.mu.Lock()
	rl.running--
	rl.dispatchLocked()
	rl.mu.Unlock()
}

// admitNowLocked records an immediate admission if both the window and the
// concurrency cap have room.
func (rl *RateLimiter) admitNowLocked() bool {
	now := rl.now()
	rl.pruneLocked(now)
	if len(rl.starts) >= rl.config.MaxRequests || rl.running >= rl.config.MaxConcurrent {
		return false
	}
	rl.starts = append(rl.starts, now)
	rl.running++
	return true
}

// dispatchLocked admits queued callers in arrival order while capacity
// remains, then arms a wake-up timer if the window is the binding
// constraint for the head of the queue.
func (rl *RateLimiter) dispatchLocked() {
	now := rl.now()
	rl.pruneLocked(now)

	for len(rl.queue) > 0 &&
		len(rl.starts) < rl.config.MaxRequests &&
		rl.running < rl.config.MaxConcurrent {
		w := rl.queue[0]
		rl.queue = rl.queue[1:]
		w.admitted = true
		w.startedAt = now
		rl.starts = append(rl.starts, now)
		rl.running++
		close(w.ready)
	}

	rl.scheduleWakeLocked()
}

// scheduleWakeLocked arms a one-shot timer for the moment the oldest window
// entry expires, but only when waiters are blocked on the window rather
// than the concurrency cap. Callers blocked on concurrency are woken by
// release.
func (rl *RateLimiter) scheduleWakeLocked() {
	if rl.timerArmed || len(rl.queue) == 0 || len(rl.starts) == 0 {
		return
	}
	if rl.running >= rl.config.MaxConcurrent {
		return
	}

	wait := rl.config.Window - rl.now().Sub(rl.starts[0])
	if wait < 0 {
		wait = 0
	}
	rl.timerArmed = true
	time.AfterFunc(wait, func() {
		rl.mu.Lock()
		rl.timerArmed = false
		rl.dispatchLocked()
		rl.mu.Unlock()
	})
}

// pruneLocked drops start timestamps that have slid out of the window.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-rl.config.Window)
	i := 0
	for i < len(rl.starts) && !rl.starts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		rl.starts = append(rl.starts[:0], rl.starts[i:]...)
	}
}

// removeStartLocked drops one window entry matching ts, if it has not
// already slid out of the window.
func (rl *RateLimiter) removeStartLocked(ts time.Time) {
	for i := range rl.starts {
		if rl.starts[i].Equal(ts) {
			rl.starts = append(rl.starts[:i], rl.starts[i+1:]...)
			return
		}
	}
}

// removeWaiterLocked removes a cancelled waiter from the queue.
func (rl *RateLimiter) removeWaiterLocked(w *limiterWaiter) {
	for i, qw := range rl.queue {
		if qw == w {
			rl.queue = append(rl.queue[:i], rl.queue[i+1:]...)
			return
		}
	}
}
