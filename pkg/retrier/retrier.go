// Package retrier retries fallible calls with capped exponential backoff.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 5
	defaultJitter          = 0.1
)

// Retrier runs a call up to 1+maxRetries times, sleeping a growing,
// jittered interval between attempts.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
	retryIf         func(error) bool
	onRetry         func(attempt int, err error)
}

type Option func(*Retrier)

func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) { r.initialInterval = d }
}

func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) { r.maxInterval = d }
}

func WithMultiplier(m float64) Option {
	return func(r *Retrier) { r.multiplier = m }
}

// WithMaxRetries sets how many times a failed call is repeated; 0 runs it once.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) { r.maxRetries = n }
}

// WithJitter sets the jitter factor in [0, 1]; each sleep is the backoff
// interval ± jitter × interval.
func WithJitter(j float64) Option {
	return func(r *Retrier) { r.jitter = j }
}

// WithRetryIf retries only errors for which pred returns true; any other
// error is returned immediately.
func WithRetryIf(pred func(error) bool) Option {
	return func(r *Retrier) { r.retryIf = pred }
}

// WithOnRetry registers a hook called before each retry with the attempt
// number (starting at 1) and the error that caused it.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// retries run out or ctx is done. The last error is returned.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= r.maxRetries || (r.retryIf != nil && !r.retryIf(err)) {
			return err
		}
		if r.onRetry != nil {
			r.onRetry(attempt+1, err)
		}
		if err := sleep(ctx, r.jittered(r.backoff(attempt+1))); err != nil {
			return err
		}
	}
}

// DoWithData is Do for calls that produce a value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// backoff is the un-jittered wait before retry n (n >= 1).
func (r *Retrier) backoff(n int) time.Duration {
	interval := float64(r.initialInterval)
	for i := 1; i < n; i++ {
		interval *= r.multiplier
		if interval >= float64(r.maxInterval) {
			return r.maxInterval
		}
	}
	if d := time.Duration(interval); d < r.maxInterval {
		return d
	}
	return r.maxInterval
}

func (r *Retrier) jittered(d time.Duration) time.Duration {
	if r.jitter <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * r.jitter * float64(d)
	if out := time.Duration(float64(d) + delta); out > 0 {
		return out
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
