package storage

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/lacunalabs/blobcache/pkg/types"
)

// putEntry writes entry into bucket b, JSON-encoding the CacheEntry
// (including its already-encrypted/serialized Value bytes) as the bbolt
// value.
func putEntry(b *bolt.Bucket, entry types.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.Put([]byte(compositeKey(entry.TypeName, entry.Key)), data)
}

func decodeEntry(data []byte) (types.CacheEntry, error) {
	var entry types.CacheEntry
	err := json.Unmarshal(data, &entry)
	return entry, err
}

func getEntry(b *bolt.Bucket, typeTag, key string) (types.CacheEntry, bool, error) {
	data := b.Get(boltKey(typeTag, key))
	if data == nil {
		return types.CacheEntry{}, false, nil
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return types.CacheEntry{}, false, err
	}
	return entry, true, nil
}
