package blobcache

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lacunalabs/blobcache/pkg/cachecrypto"
	"github.com/lacunalabs/blobcache/pkg/log"
	"github.com/lacunalabs/blobcache/pkg/reqcache"
	"github.com/lacunalabs/blobcache/pkg/serializer"
)

// Store is one opened blob cache instance: a backend (queued SQLite or
// direct bolt/memory), the serializer and crypto provider every typed
// operation routes payloads through, and the request cache coalescing
// GetOrFetchObject calls (spec.md §4.5).
type Store struct {
	name       string
	backend    backend
	serializer *serializer.Serializer
	crypto     cachecrypto.Provider
	requests   *reqcache.Cache
	logger     zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func newStore(name string, b backend, ser *serializer.Serializer, crypto cachecrypto.Provider, requestCacheSize int) *Store {
	if crypto == nil {
		crypto = cachecrypto.NopProvider{}
	}
	return &Store{
		name:       name,
		backend:    b,
		serializer: ser,
		crypto:     crypto,
		requests:   reqcache.New(requestCacheSize),
		logger:     log.WithStore(name),
	}
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Depth reports the underlying operation queue's buffered item count (0 for
// backends with no queue in front of them), exposed for pkg/metrics.Collector.
func (s *Store) Depth() int {
	return s.backend.depth()
}

// Close is idempotent and drains all in-flight writes before disposing the
// underlying backend; subsequent operations on s return cacheerr.ErrDisposed
// (spec.md §5).
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.requests.RemoveAll()
	s.logger.Debug().Msg("store closing")
	return s.backend.close()
}
