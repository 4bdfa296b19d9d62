package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil // 第一次就成功
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestBackoffRetryer_Exhausted(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	permanent := errors.New("always fails")
	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return permanent
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 4, callCount, "initial attempt + 3 retries")
}

func TestBackoffRetryer_RetryIfPredicate(t *testing.T) {
	retryable := errors.New("retry me")
	fatal := errors.New("do not retry")

	policy := fastPolicy()
	policy.RetryIf = func(err error) bool { return errors.Is(err, retryable) }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, callCount, "non-retryable error must not be retried")
}

func TestBackoffRetryer_RetryableErrorsList(t *testing.T) {
	sentinel := errors.New("flaky")
	policy := fastPolicy()
	policy.RetryableErrors = []error{sentinel}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return errors.New("different error")
	})

	require.Error(t, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_ContextCancellation(t *testing.T) {
	policy := fastPolicy()
	policy.InitialDelay = time.Second
	policy.MaxDelay = time.Second
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := retryer.Do(ctx, func() error {
		return errors.New("fail then wait")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	var attempts []int
	policy := fastPolicy()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	_ = retryer.Do(context.Background(), func() error {
		return errors.New("fail")
	})

	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestDoWithResultTyped(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(), zap.NewNop())

	calls := 0
	val, err := DoWithResultTyped[int](retryer, context.Background(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("once more")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, val)

	_, err = DoWithResultTyped[string](retryer, context.Background(), func() (string, error) {
		return "", errors.New("boom")
	})
	assert.Error(t, err)
}

func TestCalculateDelayCapped(t *testing.T) {
	policy := &RetryPolicy{
		MaxRetries:   10,
		InitialDelay: time.Millisecond,
		MaxDelay:     8 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
	r := NewBackoffRetryer(policy, zap.NewNop()).(*backoffRetryer)

	assert.Equal(t, time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 2*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 8*time.Millisecond, r.calculateDelay(5))
	assert.Equal(t, 8*time.Millisecond, r.calculateDelay(9))
}
