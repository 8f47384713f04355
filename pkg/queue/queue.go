// Package queue implements the SQLite-backed operation queue (spec.md
// §4.4): it buffers calls issued against a storage.SQLiteStore, coalesces
// them by key and by kind, and drains them in bulk on a single background
// worker. It is the only writer of the underlying database connection.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"github.com/lacunalabs/blobcache/pkg/future"
	"github.com/lacunalabs/blobcache/pkg/storage"
	"github.com/lacunalabs/blobcache/pkg/types"
)

// Outcome is the result delivered to every submitted item's sink. Only the
// fields relevant to the item's kind are populated.
type Outcome struct {
	Value     []byte
	Pairs     []storage.KeyValue
	Keys      []string
	CreatedAt time.Time
	Found     bool
	Err       error
}

// Item is one buffered unit of work; non-keyed kinds (GetAllKeys,
// InvalidateAll, Vacuum) leave Key empty.
type Item struct {
	kind    types.OperationKind
	key     string
	typeTag string
	value   []byte
	expires time.Time
	sinks   []*future.Source[Outcome]
}

// DefaultIdleFlush is the period of the queue's flush ticker: the buffer
// is drained every DefaultIdleFlush, and the period restarts after each
// explicit or depth-triggered drain. New submissions do not restart it, so
// the drain is not delayed until the queue has been idle that long.
const DefaultIdleFlush = 30 * time.Second

// DefaultDepthThreshold is the buffered-item count that triggers an
// immediate flush instead of waiting for the idle timer.
const DefaultDepthThreshold = 64

// Queue buffers and coalesces operations in front of a storage.SQLiteStore.
type Queue struct {
	store *storage.SQLiteStore

	mu         sync.Mutex
	buckets    map[string][]*Item
	bucketKeys []string
	globalOps  []*Item
	depth      int
	closed     bool

	drainMu sync.Mutex

	idleFlush      time.Duration
	depthThreshold int
	flushCh        chan struct{}
	stopCh         chan struct{}
	wg             sync.WaitGroup
}

// Options configures a Queue's flush triggers.
type Options struct {
	IdleFlush      time.Duration
	DepthThreshold int
}

// New builds a Queue fronting store and starts its background worker.
func New(store *storage.SQLiteStore, opts Options) *Queue {
	idle := opts.IdleFlush
	if idle <= 0 {
		idle = DefaultIdleFlush
	}
	depth := opts.DepthThreshold
	if depth <= 0 {
		depth = DefaultDepthThreshold
	}

	q := &Queue{
		store:          store,
		buckets:        make(map[string][]*Item),
		idleFlush:      idle,
		depthThreshold: depth,
		flushCh:        make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

// loop is the queue's single worker: a ticker-driven periodic flush raced
// against an explicit/depth-pressure signal, mirroring the
// heartbeat/executor ticker+stopCh shape used elsewhere in this codebase.
func (q *Queue) loop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.idleFlush)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.drain()
		case <-q.flushCh:
			q.drain()
			ticker.Reset(q.idleFlush)
		case <-q.stopCh:
			q.drain()
			return
		}
	}
}

// Close stops the background worker after draining any remaining buffer.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
	return nil
}

func (q *Queue) signalFlush() {
	select {
	case q.flushCh <- struct{}{}:
	default:
	}
}

// Flush forces the current buffer to drain immediately, then performs the
// store's own Flush (a no-op for SQLite per spec.md §4.3).
func (q *Queue) Flush(typeTag string) *future.Result[Outcome] {
	q.drain()
	src, res := future.New[Outcome]()
	src.Complete(Outcome{Err: q.store.Flush(typeTag)}, nil)
	return res
}

func bucketKeyFor(typeTag, key string) string {
	return typeTag + "\x00" + key
}

func (q *Queue) submitKeyed(kind types.OperationKind, key, typeTag string, value []byte, expires time.Time) *future.Result[Outcome] {
	src, res := future.New[Outcome]()
	item := &Item{kind: kind, key: key, typeTag: typeTag, value: value, expires: expires, sinks: []*future.Source[Outcome]{src}}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		src.Complete(Outcome{}, cacheerr.Disposed())
		return res
	}
	bk := bucketKeyFor(typeTag, key)
	if _, ok := q.buckets[bk]; !ok {
		q.bucketKeys = append(q.bucketKeys, bk)
	}
	q.buckets[bk] = append(q.buckets[bk], item)
	q.depth++
	signal := q.depth >= q.depthThreshold
	q.mu.Unlock()

	if signal {
		q.signalFlush()
	}
	return res
}

func (q *Queue) submitGlobal(kind types.OperationKind, typeTag string) *future.Result[Outcome] {
	src, res := future.New[Outcome]()
	item := &Item{kind: kind, typeTag: typeTag, sinks: []*future.Source[Outcome]{src}}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		src.Complete(Outcome{}, cacheerr.Disposed())
		return res
	}
	q.globalOps = append(q.globalOps, item)
	q.depth++
	q.mu.Unlock()

	q.signalFlush()
	return res
}

// Insert enqueues a single-key write (spec.md §4.3 insert).
func (q *Queue) Insert(key string, value []byte, expires time.Time, typeTag string) *future.Result[Outcome] {
	return q.submitKeyed(types.OpBulkInsert, key, typeTag, value, expires)
}

// Get enqueues a single-key read (spec.md §4.3 get).
func (q *Queue) Get(key string, typeTag string) *future.Result[Outcome] {
	return q.submitKeyed(types.OpBulkGet, key, typeTag, nil, time.Time{})
}

// Invalidate enqueues a single-key removal (spec.md §4.3 invalidate).
func (q *Queue) Invalidate(key string, typeTag string) *future.Result[Outcome] {
	return q.submitKeyed(types.OpBulkInvalidate, key, typeTag, nil, time.Time{})
}

// GetCreatedAt enqueues a keyed, non-coalescable lookup.
func (q *Queue) GetCreatedAt(key string, typeTag string) *future.Result[Outcome] {
	return q.submitKeyed(types.OpGetCreatedAt, key, typeTag, nil, time.Time{})
}

// GetAllKeys enqueues a non-keyed enumeration; a backend failure surfaces
// as Outcome.Err wrapping cacheerr.ErrEnumeration (spec.md §4.3: "exceptions
// during enumeration MUST surface as a distinct EnumerationError").
func (q *Queue) GetAllKeys(typeTag string) *future.Result[Outcome] {
	return q.submitGlobal(types.OpGetAllKeys, typeTag)
}

// GetAllKeysSafe wraps GetAllKeys and converts an enumeration failure into
// an empty key list instead of propagating the error (spec.md §4.4's
// "distinct contract" from the raw GetAllKeys), mirroring
// storage.GetAllKeysSafe at the queue layer.
func (q *Queue) GetAllKeysSafe(typeTag string) *future.Result[Outcome] {
	src, res := future.New[Outcome]()
	go func() {
		outcome, err := q.GetAllKeys(typeTag).Wait(context.Background())
		if err != nil || outcome.Err != nil {
			src.Complete(Outcome{}, nil)
			return
		}
		src.Complete(outcome, nil)
	}()
	return res
}

// InvalidateAll enqueues a non-keyed bulk removal.
func (q *Queue) InvalidateAll(typeTag string) *future.Result[Outcome] {
	return q.submitGlobal(types.OpInvalidateAll, typeTag)
}

// Vacuum enqueues a non-keyed compaction pass.
func (q *Queue) Vacuum() *future.Result[Outcome] {
	return q.submitGlobal(types.OpVacuum, "")
}

// Depth reports the number of items currently buffered (used by
// pkg/metrics for the queue depth gauge).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}
