// Package storage implements the blob-level storage backend (spec.md §4.3):
// the persistent contract the operation queue and the typed facade are built
// on. Three implementations share the Store interface: SQLiteStore (durable,
// routed through the operation queue), BoltStore (durable, transactional,
// no queue), and MemoryStore (volatile, process-local).
package storage

import (
	"sync"
	"time"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"github.com/lacunalabs/blobcache/pkg/types"
)

// KeyValue is one (key, bytes) pair returned by GetBulk.
type KeyValue struct {
	Key   string
	Value []byte
}

// Store is the blob-level contract every backend implements (spec.md §4.3).
// typeTag scopes an operation to entries inserted under that type name; the
// empty string means "untyped / blob-level access".
type Store interface {
	Insert(key string, value []byte, expires time.Time, typeTag string) error
	InsertBulk(pairs []types.InsertPair, typeTag string) error
	Get(key string, typeTag string) ([]byte, error)
	GetBulk(keys []string, typeTag string) ([]KeyValue, error)
	GetAllKeys(typeTag string) ([]string, error)
	GetCreatedAt(key string, typeTag string) (time.Time, bool, error)
	Invalidate(keys []string, typeTag string) error
	InvalidateAll(typeTag string) error
	Vacuum() error
	Flush(typeTag string) error
	Close() error
}

// GetAllKeysSafe wraps GetAllKeys per spec.md §4.4: enumeration failures are
// swallowed into an empty result instead of propagating, so a single
// misbehaving backend call never aborts a downstream pipeline.
func GetAllKeysSafe(s Store, typeTag string) []string {
	keys, err := s.GetAllKeys(typeTag)
	if err != nil {
		return nil
	}
	return keys
}

// compositeKey scopes a raw key to a type tag for map-backed storage.
func compositeKey(typeTag, key string) string {
	if typeTag == "" {
		return key
	}
	return typeTag + "\x00" + key
}

// MemoryStore is the in-memory backend (spec.md §6): a concurrent map from
// composite key to entry, with an identical contract to the persistent
// backends and no durability.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]types.CacheEntry
	closed  bool
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]types.CacheEntry)}
}

func (s *MemoryStore) Insert(key string, value []byte, expires time.Time, typeTag string) error {
	if key == "" {
		return cacheerr.Argument("key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cacheerr.Disposed()
	}
	s.entries[compositeKey(typeTag, key)] = types.CacheEntry{
		Key:       key,
		TypeName:  typeTag,
		Value:     append([]byte(nil), value...),
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expires,
	}
	return nil
}

func (s *MemoryStore) InsertBulk(pairs []types.InsertPair, typeTag string) error {
	if len(pairs) == 0 {
		return cacheerr.Argument("insert_bulk requires a non-empty list")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cacheerr.Disposed()
	}
	for _, p := range pairs {
		if p.Key == "" {
			return cacheerr.Argument("key must not be empty")
		}
	}
	now := time.Now().UTC()
	for _, p := range pairs {
		s.entries[compositeKey(typeTag, p.Key)] = types.CacheEntry{
			Key:       p.Key,
			TypeName:  typeTag,
			Value:     append([]byte(nil), p.Value...),
			CreatedAt: now,
			ExpiresAt: p.Expires,
		}
	}
	return nil
}

func (s *MemoryStore) Get(key string, typeTag string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cacheerr.Disposed()
	}
	entry, ok := s.entries[compositeKey(typeTag, key)]
	if !ok || entry.Expired(time.Now().UTC()) {
		return nil, cacheerr.KeyNotFound(key)
	}
	return append([]byte(nil), entry.Value...), nil
}

func (s *MemoryStore) GetBulk(keys []string, typeTag string) ([]KeyValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cacheerr.Disposed()
	}
	now := time.Now().UTC()
	var out []KeyValue
	for _, key := range keys {
		entry, ok := s.entries[compositeKey(typeTag, key)]
		if !ok || entry.Expired(now) {
			continue
		}
		out = append(out, KeyValue{Key: key, Value: append([]byte(nil), entry.Value...)})
	}
	return out, nil
}

func (s *MemoryStore) GetAllKeys(typeTag string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cacheerr.Disposed()
	}
	now := time.Now().UTC()
	var keys []string
	for _, entry := range s.entries {
		if entry.TypeName != typeTag || entry.Expired(now) {
			continue
		}
		keys = append(keys, entry.Key)
	}
	return keys, nil
}

func (s *MemoryStore) GetCreatedAt(key string, typeTag string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return time.Time{}, false, cacheerr.Disposed()
	}
	entry, ok := s.entries[compositeKey(typeTag, key)]
	if !ok || entry.Expired(time.Now().UTC()) {
		return time.Time{}, false, nil
	}
	return entry.CreatedAt, true, nil
}

func (s *MemoryStore) Invalidate(keys []string, typeTag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cacheerr.Disposed()
	}
	for _, key := range keys {
		delete(s.entries, compositeKey(typeTag, key))
	}
	return nil
}

func (s *MemoryStore) InvalidateAll(typeTag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cacheerr.Disposed()
	}
	if typeTag == "" {
		s.entries = make(map[string]types.CacheEntry)
		return nil
	}
	for k, entry := range s.entries {
		if entry.TypeName == typeTag {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *MemoryStore) Vacuum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cacheerr.Disposed()
	}
	now := time.Now().UTC()
	for k, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, k)
		}
	}
	return nil
}

// Flush is a no-op for MemoryStore: every write is already visible.
func (s *MemoryStore) Flush(typeTag string) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}
