package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
)

// RetryConfig bounds the retry loop around submit and poll.
type RetryConfig struct {
	// MaxRetries is the total number of attempts, the first included.
	MaxRetries int
	// BaseDelay is the wait before the second attempt; each later wait doubles.
	BaseDelay time.Duration
}

// DefaultRetryConfig returns the standard retry budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultRetryBaseDelay}
}

// Retrier runs an attempt until it succeeds, fails with a non-retryable
// error, or exhausts MaxRetries.
type Retrier struct {
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetrier creates a retrier. Zero config fields take defaults.
func NewRetrier(cfg RetryConfig, logger *slog.Logger) *Retrier {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryBaseDelay
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Retrier{cfg: cfg, logger: logger}
}

// Config returns the effective retry budget.
func (r *Retrier) Config() RetryConfig {
	return r.cfg
}

// AttemptFunc performs one full attempt. attempt starts at 1.
type AttemptFunc func(ctx context.Context, attempt int) (*SubmissionResult, error)

// RetryNotifyFunc is called before each wait with the error that caused it.
type RetryNotifyFunc func(attempt int, err error, wait time.Duration)

// Do runs fn with exponential backoff. It returns the successful result and
// the number of attempts made, or the last error once retrying stops.
func (r *Retrier) Do(ctx context.Context, fn AttemptFunc, notify RetryNotifyFunc) (*SubmissionResult, int, error) {
	policy := r.backOff()

	attempts := 0
	op := func() (*SubmissionResult, error) {
		attempts++
		res, err := fn(ctx, attempts)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || !Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(r.cfg.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Warn("attempt failed, retrying",
				"attempt", attempts,
				"error_kind", Classify(err),
				"error", err,
				"wait", wait,
			)
			if notify != nil {
				notify(attempts, err, wait)
			}
		}),
	)
	if err != nil {
		// The final attempt's permanent error comes back still wrapped.
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return nil, attempts, err
	}
	return res, attempts, nil
}

// backOff yields BaseDelay * 2^(n-1) before attempt n+1, with no jitter.
func (r *Retrier) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         r.cfg.BaseDelay << uint(r.cfg.MaxRetries),
	}
	b.Reset()
	return b
}
