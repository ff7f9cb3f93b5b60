package marketdata

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openfolio/marketd/internal/cache/memory"
	"github.com/openfolio/marketd/internal/domain"
)

// defaultQueueBuffer is the task channel capacity when the configured buffer
// is zero. Submitters block once the buffer fills, which is the desired
// back-pressure.
const defaultQueueBuffer = 256

type taskResult struct {
	price domain.MarketPrice
	err   error
}

// task is one deferred fetch: the composed cache key, the work to run, and
// the channel its result is delivered on.
type task struct {
	id     uuid.UUID
	key    string
	run    func(ctx context.Context) (domain.MarketPrice, error)
	result chan taskResult
}

// Queue serializes provider fetches: a single worker drains tasks strictly
// one at a time, so overlapping calls to the rate-limited provider are never
// issued concurrently.
//
// Before executing a dequeued task the worker re-checks the cache under the
// task's key; a task that queued behind one for the same key returns the
// freshly cached value without a new upstream call. This mitigates, but does
// not eliminate, duplicate fetches: a request that misses the cache while an
// identical fetch is mid-flight still enqueues its own task, and if the
// first fetch fails both reach the provider. Duplicate fetches are
// idempotent reads, so this is tolerated rather than coalesced.
type Queue struct {
	tasks  chan *task
	cache  *memory.Cache
	logger *slog.Logger
}

// NewQueue creates a Queue whose worker re-checks cache before each fetch.
func NewQueue(buffer int, cache *memory.Cache, logger *slog.Logger) *Queue {
	if buffer <= 0 {
		buffer = defaultQueueBuffer
	}
	return &Queue{
		tasks:  make(chan *task, buffer),
		cache:  cache,
		logger: logger.With(slog.String("component", "fetch_queue")),
	}
}

// Run drains tasks until ctx is cancelled. Exactly one Run must be active;
// queue concurrency = 1 is the serialization guarantee.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.InfoContext(ctx, "fetch queue worker started")
	for {
		select {
		case <-ctx.Done():
			q.logger.InfoContext(ctx, "fetch queue worker stopped")
			return ctx.Err()
		case t := <-q.tasks:
			q.execute(ctx, t)
		}
	}
}

// Submit enqueues a fetch for key and blocks until the worker delivers its
// result or ctx is done. An abandoned result is still deliverable because
// the result channel is buffered.
func (q *Queue) Submit(ctx context.Context, key string, run func(ctx context.Context) (domain.MarketPrice, error)) (domain.MarketPrice, error) {
	t := &task{
		id:     uuid.New(),
		key:    key,
		run:    run,
		result: make(chan taskResult, 1),
	}

	select {
	case q.tasks <- t:
	case <-ctx.Done():
		return domain.MarketPrice{}, ctx.Err()
	}

	q.logger.DebugContext(ctx, "task enqueued",
		slog.String("task_id", t.id.String()),
		slog.String("key", t.key),
	)

	select {
	case res := <-t.result:
		return res.price, res.err
	case <-ctx.Done():
		return domain.MarketPrice{}, ctx.Err()
	}
}

// execute runs one task, short-circuiting to the cache when another task
// populated it while this one waited in the queue.
func (q *Queue) execute(ctx context.Context, t *task) {
	if v, ok := q.cache.Get(t.key); ok {
		if p, ok := v.(domain.MarketPrice); ok {
			q.logger.DebugContext(ctx, "task short-circuited by cache",
				slog.String("task_id", t.id.String()),
				slog.String("key", t.key),
			)
			p.Source = domain.SourceCache
			t.result <- taskResult{price: p}
			return
		}
	}

	p, err := t.run(ctx)
	t.result <- taskResult{price: p, err: err}
}
