// Package ratelimit enforces the upstream equity provider's call budget with
// a fixed-window token bucket shared by all callers.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a fixed-window token bucket: capacity tokens become available at
// the start of each interval and are consumed one per Acquire. The bucket is
// shared process-wide because the upstream constraint is per API key, not
// per symbol.
//
// Waiters are deliberately not served FIFO: every waiter sleeps until the
// window rolls over and then races for the refreshed tokens.
type Bucket struct {
	mu          sync.Mutex
	capacity    int
	interval    time.Duration
	tokens      int
	windowStart time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Bucket allowing capacity acquisitions per interval. The
// bucket starts full.
func New(capacity int, interval time.Duration) *Bucket {
	if capacity < 1 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	b := &Bucket{
		capacity: capacity,
		interval: interval,
		tokens:   capacity,
		now:      time.Now,
		sleep:    sleepContext,
	}
	b.windowStart = b.now()
	return b
}

// Acquire blocks until a token is available, then consumes it. It returns
// the context error if ctx is cancelled while waiting; a cancelled Acquire
// consumes no token.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.mu.Lock()
		b.refillLocked()
		if b.tokens > 0 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := b.interval - b.now().Sub(b.windowStart)
		b.mu.Unlock()

		if wait <= 0 {
			// Window just rolled over; loop and refill.
			continue
		}
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
		// Several waiters may wake together and race for the refreshed
		// tokens, so re-run the whole procedure instead of assuming one
		// token is ours.
	}
}

// Remaining reports the tokens currently available, refilling first.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// refillLocked resets the bucket when the current window has elapsed.
// Callers must hold b.mu.
func (b *Bucket) refillLocked() {
	if b.now().Sub(b.windowStart) >= b.interval {
		b.tokens = b.capacity
		b.windowStart = b.now()
	}
}

// sleepContext waits for d, honouring context cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
