package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFatal = errors.New("fatal")

func noWait(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts}
}

func TestRetry_Success(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), noWait(3), nil, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	attempts, err := Retry(context.Background(), noWait(4), nil, func() error {
		calls++
		return errors.New("always fails")
	})
	assert.EqualError(t, err, "always fails")
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, calls)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	retryable := func(err error) bool { return !errors.Is(err, errFatal) }
	attempts, err := Retry(context.Background(), noWait(10), retryable, func() error {
		calls++
		if calls == 2 {
			return errFatal
		}
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 2, attempts)
}

func TestRetry_ZeroAttemptsStillCallsOnce(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{}, nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	calls := 0
	_, err := Retry(ctx, RetryPolicy{MaxAttempts: 100, Interval: 20 * time.Millisecond}, nil, func() error {
		calls++
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 100)
}

func TestRetryResult_ReturnsValue(t *testing.T) {
	calls := 0
	result, attempts, err := RetryResult(context.Background(), noWait(3), nil, func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, attempts)
}
