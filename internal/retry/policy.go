package retry

import (
	"context"
	"time"

	"github.com/lestrrat-go/backoff/v2"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// Policy retries an operation with exponential backoff and jitter.
type Policy struct {
	// MaxAttempts bounds the total number of calls, including the first.
	MaxAttempts int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter randomises each delay by this fraction, in [0, 1).
	Jitter float64

	// Retryable classifies errors. Defaults to the package Retryable.
	Retryable func(error) bool

	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error)
}

// FromSettings builds a policy from retry settings.
func FromSettings(s domain.RetrySettings) Policy {
	return Policy{
		MaxAttempts: s.MaxAttempts,
		BaseDelay:   s.BaseDelay,
		MaxDelay:    s.MaxDelay,
		Jitter:      s.Jitter,
	}
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// attempts run out. It returns the number of calls made and the last error.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = Retryable
	}

	// The controller's timer goroutine lives until its context ends.
	bctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctrl := p.backoff(maxAttempts).Start(bctx)
	attempts := 0
	var lastErr error

	for backoff.Continue(ctrl) {
		attempts++
		lastErr = op(ctx)
		if lastErr == nil {
			return attempts, nil
		}
		if attempts >= maxAttempts || !retryable(lastErr) {
			return attempts, lastErr
		}
		if wait := RetryAfter(lastErr); wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return attempts, err
			}
		}
		if p.OnRetry != nil {
			p.OnRetry(attempts, lastErr)
		}
	}

	if err := ctx.Err(); err != nil {
		return attempts, err
	}
	return attempts, lastErr
}

func (p Policy) backoff(maxAttempts int) backoff.Policy {
	jitter := p.Jitter
	if jitter < 0 {
		jitter = 0
	}
	if jitter >= 1 {
		jitter = 0.99
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay < base {
		maxDelay = base
	}

	return backoff.Exponential(
		backoff.WithMinInterval(base),
		backoff.WithMaxInterval(maxDelay),
		backoff.WithMultiplier(2),
		backoff.WithJitterFactor(jitter),
		backoff.WithMaxRetries(maxAttempts),
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
