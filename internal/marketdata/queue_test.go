package marketdata

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfolio/marketd/internal/cache/memory"
	"github.com/openfolio/marketd/internal/domain"
)

func newRunningQueue(t *testing.T, cache *memory.Cache) *Queue {
	t.Helper()
	q := NewQueue(16, cache, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = q.Run(ctx) }()
	return q
}

func TestQueueNeverRunsTasksConcurrently(t *testing.T) {
	q := newRunningQueue(t, memory.New(100))

	var inflight, maxInflight int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := q.Submit(context.Background(), "k"+string(rune('a'+i)), func(ctx context.Context) (domain.MarketPrice, error) {
				n := atomic.AddInt32(&inflight, 1)
				for {
					m := atomic.LoadInt32(&maxInflight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inflight, -1)
				return domain.MarketPrice{Symbol: "X"}, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInflight), "worker concurrency must be exactly 1")
}

func TestQueueShortCircuitsWhenCachePopulatedWhileWaiting(t *testing.T) {
	cache := memory.New(100)
	q := newRunningQueue(t, cache)

	const key = "price:stock:AAPL:USD"
	started := make(chan struct{})
	release := make(chan struct{})

	// First task blocks mid-fetch, then caches its result the way the
	// aggregator does.
	firstDone := make(chan domain.MarketPrice, 1)
	go func() {
		p, err := q.Submit(context.Background(), key, func(ctx context.Context) (domain.MarketPrice, error) {
			close(started)
			<-release
			price := domain.MarketPrice{Symbol: "AAPL", Price: 182.52, Source: domain.SourceEquityProvider}
			cache.Set(key, price, time.Minute)
			return price, nil
		})
		if err == nil {
			firstDone <- p
		}
	}()

	<-started

	// Second task for the same key enqueues while the first is mid-flight.
	secondRan := false
	secondDone := make(chan domain.MarketPrice, 1)
	go func() {
		p, err := q.Submit(context.Background(), key, func(ctx context.Context) (domain.MarketPrice, error) {
			secondRan = true
			return domain.MarketPrice{}, nil
		})
		if err == nil {
			secondDone <- p
		}
	}()

	// Give the second submission time to land in the queue, then let the
	// first task finish.
	time.Sleep(10 * time.Millisecond)
	close(release)

	first := <-firstDone
	second := <-secondDone

	assert.Equal(t, domain.SourceEquityProvider, first.Source)
	assert.Equal(t, domain.SourceCache, second.Source, "second task should be served from cache")
	assert.InDelta(t, first.Price, second.Price, 1e-9)
	assert.False(t, secondRan, "second task's fetch must not run")
}

func TestSubmitHonoursContextCancellation(t *testing.T) {
	// Queue with no running worker: submission lands but no result comes.
	q := NewQueue(1, memory.New(10), slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Submit(ctx, "k", func(ctx context.Context) (domain.MarketPrice, error) {
		return domain.MarketPrice{}, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
