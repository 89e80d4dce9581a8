// Package dispatch runs blocking instance calls on a bounded worker
// pool and throttles successive dispatches to the same instance.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"serxng/search"
)

// DefaultMaxConcurrent bounds how many instance calls run at once.
const DefaultMaxConcurrent = 8

// Call is the blocking pipeline for one dispatch slot. The bridge does
// not retry; retry happens inside the call.
type Call func(ctx context.Context) (*search.Response, error)

// Bridge owns per-instance throttle state. One limiter per instance
// key advances the earliest next dispatch time by the configured delay
// after each dispatch; limiter waiters are served in acquisition order,
// so concurrent callers targeting one instance dispatch fairly.
type Bridge struct {
	sem    *semaphore.Weighted
	delay  time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewBridge creates a bridge. delay <= 0 disables throttling.
func NewBridge(delay time.Duration, maxConcurrent int64, logger *zap.Logger) *Bridge {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		sem:      semaphore.NewWeighted(maxConcurrent),
		delay:    delay,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Future delivers the result of one dispatched call exactly once.
type Future struct {
	done chan struct{}
	resp *search.Response
	err  error
}

// Wait blocks until the call completes or ctx expires. On expiry the
// in-flight call is abandoned: it may still finish, but its result is
// discarded and never delivered.
func (f *Future) Wait(ctx context.Context) (*search.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run schedules the call behind the instance's throttle slot and the
// worker pool, returning immediately with a future.
func (b *Bridge) Run(ctx context.Context, instanceURL string, call Call) *Future {
	fut := &Future{done: make(chan struct{})}
	go func() {
		defer close(fut.done)

		if err := b.limiter(instanceURL).Wait(ctx); err != nil {
			fut.err = err
			return
		}
		if err := b.sem.Acquire(ctx, 1); err != nil {
			fut.err = err
			return
		}
		defer b.sem.Release(1)

		fut.resp, fut.err = call(ctx)
	}()
	return fut
}

func (b *Bridge) limiter(instanceURL string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	lim, ok := b.limiters[instanceURL]
	if !ok {
		limit := rate.Inf
		if b.delay > 0 {
			limit = rate.Every(b.delay)
		}
		lim = rate.NewLimiter(limit, 1)
		b.limiters[instanceURL] = lim
	}
	return lim
}
