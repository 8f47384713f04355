package storage

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"github.com/lacunalabs/blobcache/pkg/log"
	"github.com/lacunalabs/blobcache/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// entryBucket holds every CacheEntry; the type tag is folded into the key
// rather than split across per-type buckets, so GetAllKeys/InvalidateAll can
// filter with a single cursor scan instead of juggling dynamic buckets.
var entryBucket = []byte("cache_entries")

// BoltStore implements Store over a single bbolt file. Unlike SQLiteStore it
// is not fronted by an operation queue: bbolt's own single-writer
// transaction serializes concurrent callers directly.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a bbolt-backed store at dataDir/cache.db.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "cache.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, cacheerr.IO("", fmt.Errorf("open bolt store %q: %w", dbPath, err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entryBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, cacheerr.IO("", fmt.Errorf("create cache bucket: %w", err))
	}

	log.WithComponent("storage").Debug().Str("path", dbPath).Msg("bolt store opened")
	return &BoltStore{db: db}, nil
}

func boltKey(typeTag, key string) []byte {
	return []byte(compositeKey(typeTag, key))
}

func (s *BoltStore) Insert(key string, value []byte, expires time.Time, typeTag string) error {
	if key == "" {
		return cacheerr.Argument("key must not be empty")
	}
	entry := types.CacheEntry{
		Key: key, TypeName: typeTag, Value: value,
		CreatedAt: time.Now().UTC(), ExpiresAt: expires,
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putEntry(tx.Bucket(entryBucket), entry)
	})
}

func (s *BoltStore) InsertBulk(pairs []types.InsertPair, typeTag string) error {
	if len(pairs) == 0 {
		return cacheerr.Argument("insert_bulk requires a non-empty list")
	}
	now := time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucket)
		for _, p := range pairs {
			if p.Key == "" {
				return cacheerr.Argument("key must not be empty")
			}
			entry := types.CacheEntry{
				Key: p.Key, TypeName: typeTag, Value: p.Value,
				CreatedAt: now, ExpiresAt: p.Expires,
			}
			if err := putEntry(b, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Get(key string, typeTag string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		entry, ok, err := getEntry(tx.Bucket(entryBucket), typeTag, key)
		if err != nil {
			return err
		}
		if !ok || entry.Expired(time.Now().UTC()) {
			return cacheerr.KeyNotFound(key)
		}
		value = append([]byte(nil), entry.Value...)
		return nil
	})
	return value, err
}

func (s *BoltStore) GetBulk(keys []string, typeTag string) ([]KeyValue, error) {
	var out []KeyValue
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucket)
		now := time.Now().UTC()
		for _, key := range keys {
			entry, ok, err := getEntry(b, typeTag, key)
			if err != nil {
				return err
			}
			if !ok || entry.Expired(now) {
				continue
			}
			out = append(out, KeyValue{Key: key, Value: append([]byte(nil), entry.Value...)})
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) GetAllKeys(typeTag string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		now := time.Now().UTC()
		c := tx.Bucket(entryBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			entry, err := decodeEntry(v)
			if err != nil {
				return cacheerr.Enumeration(err)
			}
			if entry.TypeName == typeTag && !entry.Expired(now) {
				keys = append(keys, entry.Key)
			}
		}
		return nil
	})
	return keys, err
}

func (s *BoltStore) GetCreatedAt(key string, typeTag string) (time.Time, bool, error) {
	var (
		createdAt time.Time
		found     bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		entry, ok, err := getEntry(tx.Bucket(entryBucket), typeTag, key)
		if err != nil || !ok || entry.Expired(time.Now().UTC()) {
			return err
		}
		createdAt, found = entry.CreatedAt, true
		return nil
	})
	return createdAt, found, err
}

func (s *BoltStore) Invalidate(keys []string, typeTag string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucket)
		for _, key := range keys {
			if err := b.Delete(boltKey(typeTag, key)); err != nil {
				return cacheerr.IO(key, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) InvalidateAll(typeTag string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			entry, err := decodeEntry(v)
			if err != nil {
				continue
			}
			if typeTag == "" || entry.TypeName == typeTag {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return cacheerr.IO("", err)
			}
		}
		return nil
	})
}

// Vacuum removes expired entries. bbolt reclaims freed pages internally on
// its own free-list; there is no separate file-compaction step to run.
func (s *BoltStore) Vacuum() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucket)
		c := b.Cursor()
		now := time.Now().UTC()
		var expired [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			entry, err := decodeEntry(v)
			if err != nil {
				continue
			}
			if entry.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return cacheerr.IO("", err)
			}
		}
		return nil
	})
}

// Flush is a no-op: every bbolt transaction is already durable on commit.
func (s *BoltStore) Flush(typeTag string) error {
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
