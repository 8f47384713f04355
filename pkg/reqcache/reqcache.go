// Package reqcache implements the request cache (spec.md §4.5): the
// coalescing layer sitting in front of the storage backend. It guarantees
// at most one factory evaluation is in flight per composite (type tag,
// cache key) pair, replays the completed result to every subscriber, and
// bounds how long a successful result survives for replay with an LRU.
package reqcache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	lru "github.com/hashicorp/golang-lru"

	"github.com/lacunalabs/blobcache/pkg/future"
	"github.com/lacunalabs/blobcache/pkg/log"
)

// DefaultSize is the minimum completed-request replay bound (spec.md §4.5:
// "bound is implementation-defined but MUST be at least 20").
const DefaultSize = 20

// Key is the composite identity of one in-flight or replayable request.
// TypeTag is empty for blob-level (untyped) access.
type Key struct {
	TypeTag string
	Key     string
}

var reqLog = log.WithComponent("reqcache")

// Cache coalesces concurrent requests for the same composite key and
// replays completed results to late subscribers, up to a bounded size.
type Cache struct {
	mu       sync.Mutex
	inFlight map[Key]*future.Result[any]
	done     *lru.Cache
	group    singleflight.Group
}

// New builds a Cache whose completed-result replay table holds at most
// size entries. size is clamped up to DefaultSize.
func New(size int) *Cache {
	if size < DefaultSize {
		size = DefaultSize
	}
	done, _ := lru.New(size)
	return &Cache{
		inFlight: make(map[Key]*future.Result[any]),
		done:     done,
	}
}

// GetOrCreateRequest returns the shared in-flight or replayable result for
// composite, invoking factory at most once to produce it. First subscriber
// triggers execution; later subscribers (including ones that arrive after
// completion) observe the same value or error.
func (c *Cache) GetOrCreateRequest(composite Key, factory func() (any, error)) *future.Result[any] {
	c.mu.Lock()
	if v, ok := c.done.Get(composite); ok {
		c.mu.Unlock()
		return v.(*future.Result[any])
	}
	if res, ok := c.inFlight[composite]; ok {
		c.mu.Unlock()
		return res
	}

	src, res := future.New[any]()
	c.inFlight[composite] = res
	c.mu.Unlock()

	go c.run(composite, src, res, factory)
	return res
}

func (c *Cache) run(composite Key, src *future.Source[any], res *future.Result[any], factory func() (any, error)) {
	value, err, _ := c.group.Do(composite.TypeTag+"\x1f"+composite.Key, func() (interface{}, error) {
		return factory()
	})
	// The replay table is updated before src completes, so a caller woken
	// by the result already sees it; a composite evicted while in flight is
	// not re-added.
	c.mu.Lock()
	if c.inFlight[composite] == res {
		delete(c.inFlight, composite)
		if err == nil {
			c.done.Add(composite, res)
		}
	}
	c.mu.Unlock()
	if err != nil {
		// Per spec.md §4.5: on completion with error the entry is evicted so
		// the next caller retries instead of replaying the failure forever.
		reqLog.Debug().Str("key", composite.Key).Str("type", composite.TypeTag).Err(err).Msg("request failed, not cached for replay")
	}
	src.Complete(value, err)
}

// RemoveRequestsForKey evicts every composite whose key suffix equals
// cacheKey, regardless of type tag (spec.md §4.5 remove_requests_for_key).
func (c *Cache) RemoveRequestsForKey(cacheKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeForKeyLocked(cacheKey)
}

// RemoveRequestsForType evicts every composite under typeTag, used by
// InvalidateAllObjects (spec.md §4.6) prefix-eviction.
func (c *Cache) RemoveRequestsForType(typeTag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeWhereLocked(func(k Key) bool { return k.TypeTag == typeTag })
}

// RemoveAll evicts every composite; Store.Close calls it.
func (c *Cache) RemoveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeWhereLocked(func(Key) bool { return true })
}

func (c *Cache) removeForKeyLocked(cacheKey string) {
	c.removeWhereLocked(func(k Key) bool { return k.Key == cacheKey })
}

func (c *Cache) removeWhereLocked(match func(Key) bool) {
	for k := range c.inFlight {
		if match(k) {
			delete(c.inFlight, k)
		}
	}
	for _, raw := range c.done.Keys() {
		k := raw.(Key)
		if match(k) {
			c.done.Remove(k)
		}
	}
}
