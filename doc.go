// Package resilience provides composable reliability primitives for the
// outbound provider calls made by chat-studio:
//
//   - Retries with exponential backoff (deterministic by default, optional jitter)
//   - Sliding-window rate limiting with a concurrency cap and FIFO queueing
//   - Circuit breaker (closed / open / half-open states)
//   - Request de-duplication (merges concurrent identical in-flight calls)
//   - Prometheus metrics, OpenTelemetry spans and lightweight structured debug logging
//
// Each primitive wraps an arbitrary unit of work – a Work function supplied
// by the caller with its arguments already bound – and adds its own contract
// without inspecting or transforming the work's result. The primitives are
// independent and can be used on their own, or composed through a Client
// which layers them in the usual order:
//
//	Deduplicator → CircuitBreaker → RateLimiter → retry → work
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single instance of any primitive
//   - Errors reaching the caller faithfully reflect what happened: a
//     breaker rejection is distinguishable from the dependency's own failure,
//     and exhausted retries propagate the last underlying error unwrapped
//
// Typical usage:
//
//	client := resilience.New(
//	    resilience.WithRetryPolicy(resilience.RetryPolicy{MaxRetries: 3}),
//	    resilience.WithRateLimiter(resilience.RateLimiterConfig{MaxRequests: 20, Window: time.Minute}),
//	    resilience.WithCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 5}),
//	    resilience.WithDeduplication(),
//	)
//	models, err := resilience.RunKeyed(ctx, client, "models:list", fetchModels)
//
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger) and enable debug flags selectively (WithDebug /
// WithDebugConfig) for insight without noise.
package resilience
