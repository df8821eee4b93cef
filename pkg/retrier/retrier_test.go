package retrier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetrier_Do(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		r := New()
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		r := New(WithMaxRetries(3), WithInitialInterval(1*time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("fail")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("fail after max retries", func(t *testing.T) {
		r := New(WithMaxRetries(2), WithInitialInterval(1*time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, attempts) // 1 initial + 2 retries
	})

	t.Run("context cancellation", func(t *testing.T) {
		r := New(WithMaxRetries(5), WithInitialInterval(100*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())

		attempts := 0
		err := r.Do(ctx, func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, attempts)
	})
}

func TestRetrier_RetryIf(t *testing.T) {
	permanent := errors.New("bad request")
	r := New(
		WithMaxRetries(5),
		WithInitialInterval(1*time.Millisecond),
		WithRetryIf(func(err error) bool { return !errors.Is(err, permanent) }),
	)

	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary")
		}
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 3, attempts)
}

type throttled struct {
	after time.Duration
}

func (e throttled) Error() string             { return "too many requests" }
func (e throttled) RetryAfter() time.Duration { return e.after }

func TestRetrier_HonorsRetryAfter(t *testing.T) {
	var waits []time.Duration
	r := New(
		WithMaxRetries(2),
		WithInitialInterval(time.Hour),
		WithMaxInterval(time.Hour),
		WithOnRetry(func(attempt int, err error, wait time.Duration) {
			waits = append(waits, wait)
		}),
	)

	attempts := 0
	start := time.Now()
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return fmt.Errorf("fetch balances: %w", throttled{after: 5 * time.Millisecond})
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, waits)
	assert.Less(t, time.Since(start), time.Minute, "the hour long backoff is not used")
}

func TestRetrier_RetryAfterIsCapped(t *testing.T) {
	var waits []time.Duration
	r := New(
		WithMaxRetries(1),
		WithMaxInterval(2*time.Millisecond),
		WithOnRetry(func(_ int, _ error, wait time.Duration) {
			waits = append(waits, wait)
		}),
	)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		return throttled{after: time.Hour}
	})
	assert.Error(t, err)
	assert.Equal(t, []time.Duration{2 * time.Millisecond}, waits)
}

func TestRetrier_OnRetryCountsAttempts(t *testing.T) {
	var attempts []int
	r := New(
		WithMaxRetries(3),
		WithInitialInterval(time.Millisecond),
		WithOnRetry(func(attempt int, err error, _ time.Duration) {
			assert.EqualError(t, err, "fail")
			attempts = append(attempts, attempt)
		}),
	)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	})
	assert.EqualError(t, err, "fail")
	assert.Equal(t, []int{1, 2, 3}, attempts)
}
