// Package retrier repeats idempotent calls with exponential backoff.
package retrier

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMaxRetries      = 5

	multiplier = 2.0
	jitter     = 0.1
)

// Delayer is implemented by errors carrying the wait the server asked for,
// e.g. the Retry-After header of a 429 response.
type Delayer interface {
	RetryAfter() time.Duration
}

// Retrier implements exponential backoff with jitter.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	maxRetries      int
	retryIf         func(error) bool
	onRetry         func(attempt int, err error, wait time.Duration)
}

// Option defines a function to configure the Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the initial retry interval.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval caps both the backoff and server requested waits.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithRetryIf limits retries to errors for which fn returns true;
// any other error is returned immediately.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) {
		r.retryIf = fn
	}
}

// WithOnRetry registers fn, called before every wait with the number of the
// upcoming retry.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// New creates a new Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		maxRetries:      defaultMaxRetries,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Do executes fn until it succeeds, fails with a non retryable error or runs
// out of retries. A cancelled ctx ends the loop with ctx.Err().
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	interval := r.initialInterval

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= r.maxRetries || (r.retryIf != nil && !r.retryIf(err)) {
			return err
		}

		wait := r.wait(interval, err)
		if r.onRetry != nil {
			r.onRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * multiplier)
		if interval > r.maxInterval {
			interval = r.maxInterval
		}
	}
}

// wait prefers the delay requested by the server over the jittered backoff.
func (r *Retrier) wait(interval time.Duration, err error) time.Duration {
	var d Delayer
	if errors.As(err, &d) {
		if after := d.RetryAfter(); after > 0 {
			return min(after, r.maxInterval)
		}
	}

	spread := (rand.Float64()*2 - 1) * jitter * float64(interval)
	return max(time.Duration(float64(interval)+spread), 0)
}
