package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c := New()

	require.True(t, c.IsValid())
	assert.NotNil(t, c.circuitBreaker, "breaker is on by default")
	assert.Nil(t, c.rateLimiter, "rate limiting is opt-in")
	assert.Nil(t, c.deduplicator, "deduplication is opt-in")
	assert.Nil(t, c.metrics, "metrics are opt-in")
}

func TestClientExecuteSuccess(t *testing.T) {
	c := New()

	v, err := c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return "hello", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestClientExecuteRetriesThenSucceeds(t *testing.T) {
	c := New(
		WithMaxRetries(3),
		WithInitialDelay(time.Millisecond),
	)

	calls := 0
	v, err := c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, &HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}
		}
		return "eventually", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "eventually", v)
	assert.Equal(t, 3, calls)
}

func TestClientWorkErrorsPropagateUnwrapped(t *testing.T) {
	errBoom := errors.New("boom")
	c := New(
		WithMaxRetries(1),
		WithInitialDelay(time.Millisecond),
		WithShouldRetry(func(error) bool { return true }),
	)

	_, err := c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errBoom
	})

	// The last error comes back exactly as the work returned it.
	assert.Same(t, errBoom, err)
}

func TestClientBreakerRejection(t *testing.T) {
	c := New(
		WithMaxRetries(-1),
		WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, CooldownPeriod: time.Minute}),
	)

	errDown := errors.New("down")
	_, err := c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errDown
	})
	require.Same(t, errDown, err, "tripping failure propagates as-is")

	invoked := false
	_, err = c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		invoked = true
		return nil, nil
	})

	require.Error(t, err)
	assert.False(t, invoked, "open breaker must not invoke work")
	assert.ErrorIs(t, err, ErrCircuitOpen)

	var rich *Error
	require.ErrorAs(t, err, &rich)
	assert.Equal(t, ErrorTypeCircuitOpen, rich.Type)
}

func TestClientWithoutCircuitBreaker(t *testing.T) {
	c := New(
		WithMaxRetries(-1),
		WithoutCircuitBreaker(),
	)

	errDown := errors.New("down")
	for i := 0; i < 10; i++ {
		_, err := c.Execute(context.Background(), func(ctx context.Context) (any, error) {
			return nil, errDown
		})
		require.Same(t, errDown, err, "no breaker, every call reaches the work")
	}
}

func TestClientRateLimiterApplied(t *testing.T) {
	c := New(
		WithoutCircuitBreaker(),
		WithRateLimiter(RateLimiterConfig{MaxRequests: 2, Window: 50 * time.Millisecond}),
	)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Execute(context.Background(), func(ctx context.Context) (any, error) {
			return nil, nil
		})
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond,
		"third call must wait for the window to slide")
}

func TestClientDeduplication(t *testing.T) {
	c := New(WithDeduplication())

	var invocations int32
	started := make(chan struct{})
	release := make(chan struct{})

	work := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&invocations, 1)
		close(started)
		<-release
		return "one-flight", nil
	}

	var wg sync.WaitGroup
	results := make(chan any, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := c.ExecuteKeyed(context.Background(), "chat:list", work)
		assert.NoError(t, err)
		results <- v
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := c.ExecuteKeyed(context.Background(), "chat:list", func(ctx context.Context) (any, error) {
			atomic.AddInt32(&invocations, 1)
			return nil, nil
		})
		assert.NoError(t, err)
		results <- v
	}()
	time.Sleep(20 * time.Millisecond)

	close(release)
	wg.Wait()
	close(results)

	assert.EqualValues(t, 1, atomic.LoadInt32(&invocations))
	for v := range results {
		assert.Equal(t, "one-flight", v)
	}
}

func TestClientKeyedWithoutDeduplication(t *testing.T) {
	c := New() // no WithDeduplication

	var invocations int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ExecuteKeyed(context.Background(), "chat:list", func(ctx context.Context) (any, error) {
				atomic.AddInt32(&invocations, 1)
				time.Sleep(10 * time.Millisecond)
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2, atomic.LoadInt32(&invocations),
		"without deduplication keyed calls run independently")
}

func TestClientMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := New(
		WithMaxRetries(1),
		WithInitialDelay(time.Millisecond),
		WithMetricsCollector(NewMetricsCollectorWithRegistry(registry)),
	)

	_, err := c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	calls := 0
	_, err = c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return nil, &HTTPError{StatusCode: 500, Status: "500 Internal Server Error"}
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.metrics.callsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.metrics.callsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.metrics.retriesTotal.WithLabelValues("1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.metrics.errorsTotal.WithLabelValues(ErrorTypeServer)))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.metrics.callsInFlight))
}

func TestClientBreakerRejectionMetric(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := New(
		WithMaxRetries(-1),
		WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, CooldownPeriod: time.Minute}),
		WithMetricsCollector(NewMetricsCollectorWithRegistry(registry)),
	)

	_, _ = c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("down")
	})
	_, _ = c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.metrics.circuitBreakerRejections.WithLabelValues("default")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.metrics.errorsTotal.WithLabelValues(ErrorTypeCircuitOpen)))
}

func TestClientRetryBudget(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := New(
		WithMaxRetries(5),
		WithInitialDelay(time.Millisecond),
		WithRetryBudget(1, time.Hour),
		WithoutCircuitBreaker(),
		WithMetricsCollector(NewMetricsCollectorWithRegistry(registry)),
	)

	calls := 0
	_, err := c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return nil, &HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}
	})

	// Initial call plus the one budgeted retry, then the budget ends the
	// loop with its own error kind.
	require.Equal(t, 2, calls)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryBudgetExceeded)

	var rich *Error
	require.ErrorAs(t, err, &rich)
	assert.Equal(t, ErrorTypeRetryBudgetExceeded, rich.Type)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.retryBudgetExceeded))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.metrics.errorsTotal.WithLabelValues(ErrorTypeRetryBudgetExceeded)))
}

func TestClientSharedRetryBudget(t *testing.T) {
	budget := NewRetryBudget(1, time.Hour)
	options := []Option{
		WithMaxRetries(5),
		WithInitialDelay(time.Millisecond),
		WithSharedRetryBudget(budget),
		WithoutCircuitBreaker(),
	}
	a := New(options...)
	b := New(options...)

	fail := func(ctx context.Context) (any, error) {
		return nil, &HTTPError{StatusCode: 503}
	}

	_, err := a.Execute(context.Background(), fail)
	require.ErrorIs(t, err, ErrRetryBudgetExceeded)

	// Client b shares the spent budget: its call gets no retries.
	calls := 0
	_, err = b.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return nil, &HTTPError{StatusCode: 503}
	})
	require.ErrorIs(t, err, ErrRetryBudgetExceeded)
	assert.Equal(t, 1, calls)
}

func TestClientUserOnRetryHookRuns(t *testing.T) {
	var hookCalls int32
	c := New(WithRetryPolicy(RetryPolicy{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		OnRetry: func(retry int, err error, delay time.Duration) {
			atomic.AddInt32(&hookCalls, 1)
		},
	}))

	_, _ = c.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, &HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}
	})

	assert.EqualValues(t, 2, atomic.LoadInt32(&hookCalls))
}

func TestClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		valid   bool
	}{
		{"defaults", nil, true},
		{"negative initial delay", []Option{WithInitialDelay(-time.Second)}, false},
		{"excessive max retries", []Option{WithMaxRetries(101)}, false},
		{"debug without logger", []Option{WithDebug()}, false},
		{"debug with logger", []Option{WithSimpleLogger()}, true},
		{"valid custom stack", []Option{
			WithMaxRetries(5),
			WithRateLimiter(RateLimiterConfig{MaxRequests: 20, Window: time.Second}),
			WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, CooldownPeriod: 10 * time.Second}),
			WithDeduplication(),
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.options...)
			assert.Equal(t, tt.valid, c.IsValid())
			if tt.valid {
				assert.NoError(t, c.ValidationError())
			} else {
				var rich *Error
				require.ErrorAs(t, c.ValidationError(), &rich)
				assert.Equal(t, ErrorTypeValidation, rich.Type)
			}
		})
	}
}

func TestClassifyErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"breaker rejection", ErrCircuitOpen, ErrorTypeCircuitOpen},
		{"deadline", context.DeadlineExceeded, ErrorTypeTimeout},
		{"rate limited upstream", &HTTPError{StatusCode: 429}, ErrorTypeRateLimit},
		{"server error", &HTTPError{StatusCode: 502}, ErrorTypeServer},
		{"client error", &HTTPError{StatusCode: 404}, ErrorTypeClient},
		{"opaque", errors.New("unreachable"), ErrorTypeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyErrorType(tt.err))
		})
	}
}

func TestRunTyped(t *testing.T) {
	c := New()

	type chatPage struct {
		IDs []string
	}

	page, err := Run[chatPage](context.Background(), c, func(ctx context.Context) (chatPage, error) {
		return chatPage{IDs: []string{"a", "b"}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, page.IDs)

	_, err = Run[chatPage](context.Background(), c, func(ctx context.Context) (chatPage, error) {
		return chatPage{}, errors.New("nope")
	})
	assert.Error(t, err)
}

func TestRunKeyedTyped(t *testing.T) {
	c := New(WithDeduplication())

	n, err := RunKeyed[int](context.Background(), c, "count", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
