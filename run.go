package resilience

import "context"

// Run executes work through exec and returns its typed result. It is a
// convenience wrapper over the untyped Executor surface.
func Run[T any](ctx context.Context, exec Executor, work func(ctx context.Context) (T, error)) (T, error) {
	v, err := exec.Execute(ctx, func(ctx context.Context) (any, error) {
		return work(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	result, _ := v.(T)
	return result, nil
}

// RunKeyed executes work through the client with deduplication under key
// and returns its typed result.
func RunKeyed[T any](ctx context.Context, c *Client, key string, work func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.ExecuteKeyed(ctx, key, func(ctx context.Context) (any, error) {
		return work(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	result, _ := v.(T)
	return result, nil
}
