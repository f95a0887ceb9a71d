package resilience

import (
	"context"
	"sync"
)

// RateLimiterRegistry routes calls to independent rate limiters keyed by an
// arbitrary string – a provider name, a model, a user tier. Keys without a
// registered limiter fall back to a shared default limiter, or pass through
// unlimited when no fallback is configured.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*RateLimiter
	fallback *RateLimiter
}

// NewRateLimiterRegistry creates a registry with the given fallback
// limiter. A nil fallback means unregistered keys are not rate limited.
func NewRateLimiterRegistry(fallback *RateLimiter) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]*RateLimiter),
		fallback: fallback,
	}
}

// RegisterLimiter adds a limiter for the given key, replacing any previous
// registration.
func (r *RateLimiterRegistry) RegisterLimiter(key string, limiter *RateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[key] = limiter
}

// GetLimiter returns the limiter for the given key and the registry key it
// resolved to ("default" for the fallback). The limiter is nil when neither
// a registration nor a fallback exists.
func (r *RateLimiterRegistry) GetLimiter(key string) (*RateLimiter, string) {
	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter, key
	}
	return r.fallback, "default"
}

// Execute runs work under the limiter registered for key.
func (r *RateLimiterRegistry) Execute(ctx context.Context, key string, work Work) (any, error) {
	limiter, _ := r.GetLimiter(key)
	if limiter == nil {
		return work(ctx)
	}
	return limiter.Execute(ctx, work)
}

// Reset resets every registered limiter plus the fallback. Intended for
// test isolation, like RateLimiter.Reset.
func (r *RateLimiterRegistry) Reset() {
	r.mu.RLock()
	limiters := make([]*RateLimiter, 0, len(r.limiters)+1)
	for _, l := range r.limiters {
		limiters = append(limiters, l)
	}
	if r.fallback != nil {
		limiters = append(limiters, r.fallback)
	}
	r.mu.RUnlock()

	for _, l := range limiters {
		l.Reset()
	}
}
