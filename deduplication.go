package resilience

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Deduplicator collapses concurrent identical calls into one in-flight
// execution. The first caller for a key becomes the owner and invokes the
// work; callers arriving while that execution is in flight do not invoke
// work again and receive the owner's eventual result or error. The
// registration is removed once the execution settles, success or failure,
// so a failed call never blocks future calls under the same key. Calls
// with different keys are fully independent.
//
// The work runs with the owner's context: if the owner cancels, every
// waiter sharing the flight observes the owner's error. A waiter whose own
// context ends stops waiting with its context error while the flight
// continues for the others.
type Deduplicator struct {
	group singleflight.Group

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewDeduplicator returns an in-memory request deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		inFlight: make(map[string]struct{}),
	}
}

// Execute runs work under key, sharing one execution among all concurrent
// callers of the same key.
func (d *Deduplicator) Execute(ctx context.Context, key string, work Work) (any, error) {
	v, _, err := d.ExecuteShared(ctx, key, work)
	return v, err
}

// ExecuteShared is Execute plus a report of whether the result was shared
// with other concurrent callers of the same key.
func (d *Deduplicator) ExecuteShared(ctx context.Context, key string, work Work) (any, bool, error) {
	ch := d.group.DoChan(key, func() (any, error) {
		d.track(key)
		defer d.untrack(key)
		return work(ctx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// InFlight returns the number of keys with an execution currently running.
func (d *Deduplicator) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

// Clear drops all bookkeeping: future calls start fresh executions even if
// a previous one is still running. In-flight work is not cancelled, only
// forgotten. Intended for test isolation.
func (d *Deduplicator) Clear() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.inFlight))
	for key := range d.inFlight {
		keys = append(keys, key)
	}
	d.inFlight = make(map[string]struct{})
	d.mu.Unlock()

	for _, key := range keys {
		d.group.Forget(key)
	}
}

func (d *Deduplicator) track(key string) {
	d.mu.Lock()
	d.inFlight[key] = struct{}{}
	d.mu.Unlock()
}

func (d *Deduplicator) untrack(key string) {
	d.mu.Lock()
	delete(d.inFlight, key)
	d.mu.Unlock()
}
