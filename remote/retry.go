package remote

import (
	"context"
	"time"
)

// RetryPolicy bounds a retry loop with a fixed wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultRetryPolicy gives a freshly booted node roughly three minutes to
// start accepting SSH connections.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 36, Interval: 5 * time.Second}
}

func (p RetryPolicy) attempts() int {
	return max(p.MaxAttempts, 1)
}

// Retry calls fn until it succeeds, returns an error rejected by retryable, or
// the policy is exhausted. It returns the number of attempts made and the last error.
func Retry(ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func() error) (int, error) {
	_, attempts, err := RetryResult(ctx, policy, retryable, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return attempts, err
}

// RetryResult is like Retry but for functions that return a value.
// Returns ctx.Err() if the context is cancelled while waiting between attempts.
func RetryResult[T any](ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func() (T, error)) (T, int, error) {
	var result T
	var err error

	maxAttempts := policy.attempts()
	for i := 1; i <= maxAttempts; i++ {
		if result, err = fn(); err == nil {
			return result, i, nil
		}
		if retryable != nil && !retryable(err) {
			return result, i, err
		}
		if i < maxAttempts {
			select {
			case <-time.After(policy.Interval):
			case <-ctx.Done():
				return result, i, ctx.Err()
			}
		}
	}
	return result, maxAttempts, err
}
