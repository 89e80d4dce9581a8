// Package retry wraps a single transport attempt with bounded retry,
// exponential backoff, and error classification.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"serxng/search"
)

// Kind classifies the outcome of one attempt.
type Kind int

const (
	// Success means the attempt produced a usable payload.
	Success Kind = iota
	// RateLimited means the backend asked us to slow down; RetryAfter,
	// when non-nil, carries its suggested delay.
	RateLimited
	// Transient means the attempt failed in a way worth retrying.
	Transient
	// Fatal means retrying cannot help; the error propagates immediately.
	Fatal
)

// Outcome is the classified result of one attempt. A nil RetryAfter
// means the backend gave no delay hint; an explicit zero means "retry
// immediately".
type Outcome[T any] struct {
	Kind       Kind
	Payload    T
	RetryAfter *time.Duration
	Err        error
}

// Operation performs one attempt and classifies what happened.
type Operation[T any] func(ctx context.Context) Outcome[T]

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
)

// Policy holds the retry schedule shared by all calls of one client.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *zap.Logger

	// overridable in tests
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(d time.Duration) time.Duration
}

// NewPolicy creates a policy. Zero arguments fall back to the defaults
// (3 attempts including the first, 500ms base delay doubling up to 10s).
func NewPolicy(maxAttempts int, baseDelay, maxDelay time.Duration, logger *zap.Logger) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		logger:      logger,
		sleep:       sleepCtx,
		jitter:      addJitter,
	}
}

// Execute drives op until it succeeds, fails fatally, or the attempt
// budget is spent. Each attempt runs under its own timeout; exceeding
// it counts as Transient. Backoff between attempts doubles from the
// base delay, is capped at the maximum, and carries ±20% jitter unless
// the backend supplied a Retry-After value.
func Execute[T any](ctx context.Context, p *Policy, timeout time.Duration, op Operation[T]) (T, error) {
	var zero T
	var last Outcome[T]

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := func() {}
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		out := op(attemptCtx)
		cancel()

		// An attempt that ran out of its own time slice is retryable,
		// unless the caller's context is gone too.
		if out.Kind != Success && errors.Is(out.Err, context.DeadlineExceeded) && ctx.Err() == nil {
			out.Kind = Transient
		}

		switch out.Kind {
		case Success:
			return out.Payload, nil
		case Fatal:
			return zero, out.Err
		}

		last = out
		if attempt == p.maxAttempts {
			break
		}

		delay := p.backoff(attempt)
		if out.Kind == RateLimited && out.RetryAfter != nil {
			delay = *out.RetryAfter
		} else {
			delay = p.jitter(delay)
		}
		p.logger.Debug("retrying after failed attempt",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(out.Err))
		if err := p.sleep(ctx, delay); err != nil {
			return zero, &search.NetworkError{Timeout: errors.Is(err, context.DeadlineExceeded), Err: err}
		}
	}

	if last.Kind == RateLimited {
		return zero, &search.RateLimitError{Attempts: p.maxAttempts, Err: last.Err}
	}
	return zero, &search.NetworkError{Timeout: isTimeout(last.Err), Err: last.Err}
}

// backoff returns the undithered delay before the next attempt:
// baseDelay doubled per completed attempt, capped at maxDelay.
func (p *Policy) backoff(attempt int) time.Duration {
	d := p.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.maxDelay {
			return p.maxDelay
		}
	}
	if d > p.maxDelay {
		d = p.maxDelay
	}
	return d
}

// addJitter spreads delays by ±20% so concurrent callers do not retry
// against the same instance in lockstep.
func addJitter(d time.Duration) time.Duration {
	factor := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * factor)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
