package blobcache

import (
	"context"
	"time"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"github.com/lacunalabs/blobcache/pkg/future"
	"github.com/lacunalabs/blobcache/pkg/metrics"
	"github.com/lacunalabs/blobcache/pkg/queue"
	"github.com/lacunalabs/blobcache/pkg/scheduler"
	"github.com/lacunalabs/blobcache/pkg/storage"
	"github.com/lacunalabs/blobcache/pkg/types"
)

// backend is the uniform async contract a Store drives: every call returns a
// lazy queue.Outcome regardless of whether a coalescing queue sits in front
// of the physical store. queueBackend fronts storage.SQLiteStore through
// pkg/queue; directBackend fronts storage.BoltStore/MemoryStore, dispatching
// through pkg/scheduler so the call still runs off the caller's goroutine
// (spec.md §5: "writes on a persistent backend are always queued on the
// worker").
//
// getAllKeys and getAllKeysSafe are deliberately distinct (spec.md §4.3,
// §4.4): getAllKeys propagates a backend enumeration failure as
// Outcome.Err/EnumerationError, while getAllKeysSafe wraps it and converts
// that failure into an empty key list.
type backend interface {
	insert(key string, value []byte, expires time.Time, typeTag string) *future.Result[queue.Outcome]
	insertBulk(pairs []types.InsertPair, typeTag string) *future.Result[queue.Outcome]
	get(key string, typeTag string) *future.Result[queue.Outcome]
	getBulk(keys []string, typeTag string) *future.Result[queue.Outcome]
	getAllKeys(typeTag string) *future.Result[queue.Outcome]
	getAllKeysSafe(typeTag string) *future.Result[queue.Outcome]
	getCreatedAt(key string, typeTag string) *future.Result[queue.Outcome]
	invalidate(keys []string, typeTag string) *future.Result[queue.Outcome]
	invalidateAll(typeTag string) *future.Result[queue.Outcome]
	vacuum() *future.Result[queue.Outcome]
	depth() int
	close() error
}

// queueBackend fronts a SQLite-backed storage.SQLiteStore via pkg/queue.
// Bulk calls are NOT dispatched as a single storage-level bulk statement:
// they fan out to one queue.Queue call per key, preserving the coalescer's
// per-key bucket ordering (spec.md §5 "per-key operations... take effect in
// [program] order"). The coalescer still physically batches same-type-tag,
// same-kind items drained in the same round into one SQL statement, so
// bulk capability is expressed through coalescing rather than a bypassing
// fast path.
type queueBackend struct {
	q *queue.Queue
}

func (b *queueBackend) insert(key string, value []byte, expires time.Time, typeTag string) *future.Result[queue.Outcome] {
	return b.q.Insert(key, value, expires, typeTag)
}

func (b *queueBackend) get(key string, typeTag string) *future.Result[queue.Outcome] {
	return b.q.Get(key, typeTag)
}

func (b *queueBackend) getCreatedAt(key string, typeTag string) *future.Result[queue.Outcome] {
	return b.q.GetCreatedAt(key, typeTag)
}

func (b *queueBackend) getAllKeys(typeTag string) *future.Result[queue.Outcome] {
	return b.q.GetAllKeys(typeTag)
}

func (b *queueBackend) getAllKeysSafe(typeTag string) *future.Result[queue.Outcome] {
	return b.q.GetAllKeysSafe(typeTag)
}

func (b *queueBackend) invalidateAll(typeTag string) *future.Result[queue.Outcome] {
	return b.q.InvalidateAll(typeTag)
}

func (b *queueBackend) vacuum() *future.Result[queue.Outcome] {
	return b.q.Vacuum()
}

func (b *queueBackend) depth() int { return b.q.Depth() }

func (b *queueBackend) close() error { return b.q.Close() }

func (b *queueBackend) insertBulk(pairs []types.InsertPair, typeTag string) *future.Result[queue.Outcome] {
	results := make([]*future.Result[queue.Outcome], len(pairs))
	for i, p := range pairs {
		results[i] = b.q.Insert(p.Key, p.Value, p.Expires, typeTag)
	}
	return fanIn(results, func([]queue.Outcome) queue.Outcome { return queue.Outcome{} })
}

func (b *queueBackend) getBulk(keys []string, typeTag string) *future.Result[queue.Outcome] {
	results := make([]*future.Result[queue.Outcome], len(keys))
	for i, k := range keys {
		results[i] = b.q.Get(k, typeTag)
	}
	return fanIn(results, mergePairs(keys))
}

func (b *queueBackend) invalidate(keys []string, typeTag string) *future.Result[queue.Outcome] {
	results := make([]*future.Result[queue.Outcome], len(keys))
	for i, k := range keys {
		results[i] = b.q.Invalidate(k, typeTag)
	}
	return fanIn(results, func([]queue.Outcome) queue.Outcome { return queue.Outcome{} })
}

// fanIn waits on every result concurrently submitted and reduces the
// collected outcomes into one combined Outcome, carrying the first error
// observed (spec.md §7: bulk reads are per-key, so individual misses never
// fail the group; only a genuine backend error does).
func fanIn(results []*future.Result[queue.Outcome], reduce func([]queue.Outcome) queue.Outcome) *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	go func() {
		outcomes := make([]queue.Outcome, len(results))
		var firstErr error
		for i, r := range results {
			outcome, err := r.Wait(context.Background())
			outcomes[i] = outcome
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if outcome.Err != nil && firstErr == nil && !cacheerr.IsKeyNotFound(outcome.Err) {
				firstErr = outcome.Err
			}
		}
		src.Complete(reduce(outcomes), firstErr)
	}()
	return res
}

func mergePairs(keys []string) func([]queue.Outcome) queue.Outcome {
	return func(outcomes []queue.Outcome) queue.Outcome {
		var pairs []storage.KeyValue
		for i, outcome := range outcomes {
			if outcome.Found {
				pairs = append(pairs, storage.KeyValue{Key: keys[i], Value: outcome.Value})
			}
		}
		return queue.Outcome{Pairs: pairs}
	}
}

// directBackend fronts a storage.Store with no queue of its own (BoltStore,
// MemoryStore): every call is dispatched via scheduler.Schedule so it still
// runs asynchronously off the caller's goroutine, and bbolt/the in-memory
// map's own bulk methods are called directly since they ARE the backend's
// declared atomic bulk capability (spec.md §4.6).
type directBackend struct {
	store storage.Store
	sched *scheduler.Scheduler
}

func (b *directBackend) insert(key string, value []byte, expires time.Time, typeTag string) *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	b.sched.Schedule(func() {
		err := b.store.Insert(key, value, expires, typeTag)
		src.Complete(queue.Outcome{}, err)
	})
	return res
}

func (b *directBackend) insertBulk(pairs []types.InsertPair, typeTag string) *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	b.sched.Schedule(func() {
		err := b.store.InsertBulk(pairs, typeTag)
		src.Complete(queue.Outcome{}, err)
	})
	return res
}

func (b *directBackend) get(key string, typeTag string) *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	b.sched.Schedule(func() {
		value, err := b.store.Get(key, typeTag)
		if err != nil {
			src.Complete(queue.Outcome{}, err)
			return
		}
		src.Complete(queue.Outcome{Value: value, Found: true}, nil)
	})
	return res
}

func (b *directBackend) getBulk(keys []string, typeTag string) *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	b.sched.Schedule(func() {
		pairs, err := b.store.GetBulk(keys, typeTag)
		src.Complete(queue.Outcome{Pairs: pairs}, err)
	})
	return res
}

func (b *directBackend) getAllKeys(typeTag string) *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	b.sched.Schedule(func() {
		keys, err := b.store.GetAllKeys(typeTag)
		if err != nil {
			src.Complete(queue.Outcome{}, cacheerr.Enumeration(err))
			return
		}
		src.Complete(queue.Outcome{Keys: keys}, nil)
	})
	return res
}

// getAllKeysSafe is the explicit safe wrapper spec.md §4.4 requires: it
// swallows an enumeration failure into an empty list rather than
// propagating it, delegating to storage.GetAllKeysSafe.
func (b *directBackend) getAllKeysSafe(typeTag string) *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	b.sched.Schedule(func() {
		keys := storage.GetAllKeysSafe(b.store, typeTag)
		src.Complete(queue.Outcome{Keys: keys}, nil)
	})
	return res
}

func (b *directBackend) getCreatedAt(key string, typeTag string) *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	b.sched.Schedule(func() {
		createdAt, found, err := b.store.GetCreatedAt(key, typeTag)
		src.Complete(queue.Outcome{CreatedAt: createdAt, Found: found}, err)
	})
	return res
}

func (b *directBackend) invalidate(keys []string, typeTag string) *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	b.sched.Schedule(func() {
		err := b.store.Invalidate(keys, typeTag)
		src.Complete(queue.Outcome{}, err)
	})
	return res
}

func (b *directBackend) invalidateAll(typeTag string) *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	b.sched.Schedule(func() {
		err := b.store.InvalidateAll(typeTag)
		src.Complete(queue.Outcome{}, err)
	})
	return res
}

func (b *directBackend) vacuum() *future.Result[queue.Outcome] {
	src, res := future.New[queue.Outcome]()
	b.sched.Schedule(func() {
		timer := metrics.NewTimer()
		err := b.store.Vacuum()
		timer.ObserveDuration(metrics.VacuumDuration)
		src.Complete(queue.Outcome{}, err)
	})
	return res
}

func (b *directBackend) depth() int { return 0 }

func (b *directBackend) close() error {
	if err := b.sched.Close(); err != nil {
		return err
	}
	return b.store.Close()
}
