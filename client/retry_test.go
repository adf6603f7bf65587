package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, nil)

	var waits []time.Duration
	res, attempts, err := r.Do(context.Background(), func(ctx context.Context, n int) (*SubmissionResult, error) {
		if n < 3 {
			return nil, errors.New("connection reset")
		}
		return &SubmissionResult{ProvisionalID: "req-3", State: StateSubmitted}, nil
	}, func(n int, err error, wait time.Duration) {
		waits = append(waits, wait)
	})

	require.NoError(t, err)
	assert.Equal(t, "req-3", res.ProvisionalID)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestRetrier_ExhaustsOnRetryableError(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 4, BaseDelay: time.Millisecond}, nil)
	netErr := errors.New("network unreachable")

	calls := 0
	_, attempts, err := r.Do(context.Background(), func(ctx context.Context, n int) (*SubmissionResult, error) {
		calls++
		return nil, netErr
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, netErr)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, attempts)
}

func TestRetrier_StopsOnPermanentError(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, nil)

	for _, kind := range []ErrorKind{KindUserRejected, KindInsufficientBalance, KindValidation, KindWalletNotConnected} {
		calls := 0
		_, attempts, err := r.Do(context.Background(), func(ctx context.Context, n int) (*SubmissionResult, error) {
			calls++
			return nil, NewError(kind, "nope", nil)
		}, nil)

		require.Error(t, err)
		assert.Equal(t, kind, Classify(err))
		assert.Equal(t, 1, calls, kind)
		assert.Equal(t, 1, attempts)

		var pe *Error
		assert.True(t, errors.As(err, &pe), "error should be unwrapped from the backoff wrapper")
	}
}

func TestRetrier_PermanentOnLastAttemptIsUnwrapped(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}, nil)
	rejected := NewError(KindUserRejected, "rejected", nil)

	_, _, err := r.Do(context.Background(), func(ctx context.Context, n int) (*SubmissionResult, error) {
		if n == 1 {
			return nil, errors.New("connection refused")
		}
		return nil, rejected
	}, nil)

	assert.Same(t, rejected, err)
}

func TestRetrier_ContextCancelledDuringWait(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 3, BaseDelay: time.Hour}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	_, _, err := r.Do(ctx, func(ctx context.Context, n int) (*SubmissionResult, error) {
		calls++
		return nil, errors.New("service unavailable")
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestNewRetrier_Defaults(t *testing.T) {
	r := NewRetrier(RetryConfig{}, nil)
	assert.Equal(t, 3, r.Config().MaxRetries)
	assert.Equal(t, time.Second, r.Config().BaseDelay)
}
