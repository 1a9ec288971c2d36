package transport

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter gates outbound requests across every alert.
// A nil semaphore means unbounded concurrency; a nil rate limiter means no rate cap.
type Limiter struct {
	slots *semaphore.Weighted
	rate  *rate.Limiter
}

// NewLimiter builds a limiter.
// Params: maximum concurrent requests (<=0 unbounded), requests per second (<=0 unlimited), burst.
// Returns: limiter shared by all transport calls.
func NewLimiter(maxConcurrent int, perSecond float64, burst int) *Limiter {
	limiter := &Limiter{}
	if maxConcurrent > 0 {
		limiter.slots = semaphore.NewWeighted(int64(maxConcurrent))
	}
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter.rate = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return limiter
}

// Acquire blocks the caller until a slot is free and the rate allows one more request.
// Waiters are served in FIFO order.
// Params: context bounding the wait.
// Returns: release callback (safe to call once) or context error.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	release := func() {}
	if l.slots != nil {
		if err := l.slots.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquire request slot: %w", err)
		}
		release = func() { l.slots.Release(1) }
	}
	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			release()
			return nil, fmt.Errorf("wait request rate: %w", err)
		}
	}
	return release, nil
}
