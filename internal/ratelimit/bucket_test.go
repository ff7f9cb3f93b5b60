package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bucketClock drives a Bucket without real sleeping: sleep advances the fake
// clock by the requested delay and records it.
type bucketClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *bucketClock) now() time.Time          { return c.t }
func (c *bucketClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func (c *bucketClock) sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
	return nil
}

func newTestBucket(capacity int, interval time.Duration) (*Bucket, *bucketClock) {
	clock := &bucketClock{t: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)}
	b := New(capacity, interval)
	b.now = clock.now
	b.sleep = clock.sleep
	b.windowStart = clock.t
	return b, clock
}

func TestBurstWithinCapacityDoesNotWait(t *testing.T) {
	b, clock := newTestBucket(5, time.Minute)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Acquire(context.Background()))
	}
	assert.Empty(t, clock.slept, "acquires within capacity must not sleep")
	assert.Equal(t, 0, b.Remaining())
}

func TestSixthAcquireWaitsForWindowRollover(t *testing.T) {
	b, clock := newTestBucket(5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Acquire(ctx))
	}

	require.NoError(t, b.Acquire(ctx))
	require.Len(t, clock.slept, 1)
	assert.Equal(t, time.Minute, clock.slept[0], "sixth acquire waits out the full remaining window")

	// The rollover refilled the bucket and the waiter consumed one token.
	assert.Equal(t, 4, b.Remaining())
}

func TestWindowNeverExceedsCapacity(t *testing.T) {
	b, clock := newTestBucket(3, time.Minute)
	ctx := context.Background()

	// 10 sequential acquires: 3 immediate, then a full-window wait before
	// each refilled batch. Count tokens handed out per window.
	grantsPerWindow := map[time.Time]int{}
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Acquire(ctx))
		grantsPerWindow[b.windowStart]++
	}

	for start, n := range grantsPerWindow {
		assert.LessOrEqual(t, n, 3, "window starting %v exceeded capacity", start)
	}
	// 10 acquires at 3 per window require at least 3 rollover waits.
	assert.GreaterOrEqual(t, len(clock.slept), 3)
}

func TestPartialWindowElapsedShortensWait(t *testing.T) {
	b, clock := newTestBucket(1, time.Minute)
	ctx := context.Background()

	require.NoError(t, b.Acquire(ctx))
	clock.advance(20 * time.Second)

	require.NoError(t, b.Acquire(ctx))
	require.Len(t, clock.slept, 1)
	assert.Equal(t, 40*time.Second, clock.slept[0])
}

func TestCancelledAcquireConsumesNoToken(t *testing.T) {
	b, _ := newTestBucket(2, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, b.Remaining())
}

func TestCancelledWaitConsumesNoToken(t *testing.T) {
	b, _ := newTestBucket(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, b.Acquire(ctx))

	b.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := b.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.Remaining())
}
