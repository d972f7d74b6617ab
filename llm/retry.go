package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// retryPolicy controls how transient failures are retried.
type retryPolicy struct {
	maxRetries        int
	baseDelay         time.Duration
	minRateLimitDelay time.Duration // minimum delay for 429 errors
}

var defaultRetryPolicy = retryPolicy{
	maxRetries:        4,
	baseDelay:         2 * time.Second,
	minRateLimitDelay: 5 * time.Second,
}

// attemptFunc performs one attempt. retryAfter is a server-suggested delay
// (zero when unknown).
type attemptFunc func() (retryAfter time.Duration, err error)

// do runs fn until it succeeds, fails with a non-retryable error, or the
// retries are exhausted. The last error is returned unchanged so callers can
// classify it.
func (p retryPolicy) do(ctx context.Context, op string, fn attemptFunc) error {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		retryAfter, err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if !IsRetryable(err) || attempt == p.maxRetries {
			break
		}

		delay := p.baseDelay * time.Duration(1<<attempt) // 2s, 4s, 8s...
		if errors.Is(err, ErrRateLimited) {
			delay = p.minRateLimitDelay * time.Duration(1<<attempt) // 5s, 10s, 20s...
			if retryAfter > delay {
				delay = retryAfter
			}
		}
		slog.Warn("llm: retrying request",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
