// Typed object facade (spec.md §4.6): generic free functions standing in
// for generic methods, which Go does not allow. Every operation takes the
// target Store explicitly and derives its type tag from the type parameter
// via typeTagFor.
package blobcache

import (
	"context"
	"reflect"
	"time"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"github.com/lacunalabs/blobcache/pkg/future"
	"github.com/lacunalabs/blobcache/pkg/reqcache"
	"github.com/lacunalabs/blobcache/pkg/serializer"
	"github.com/lacunalabs/blobcache/pkg/types"
)

// typeTagFor derives the type tag stored alongside an entry from T itself,
// using the pointer-element trick so it works for interface-typed T too.
// The tag is reflect's bare type name: the package path is not included,
// so same-named types from different packages share a tag, and unnamed
// types (slices, maps, anonymous structs) all get the empty tag.
func typeTagFor[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().Name()
}

// unit is the value type of facade operations that only report success or
// failure; Result[unit]'s error half carries the outcome.
type unit = struct{}

// InsertObject serializes, encrypts, and stores value under key, scoped to
// T's type tag (spec.md §4.6).
func InsertObject[T any](s *Store, key string, value T, expires time.Time) *future.Result[unit] {
	typeTag := typeTagFor[T]()
	src, res := future.New[unit]()
	go func() {
		if s.isClosed() {
			src.Complete(unit{}, cacheerr.Disposed())
			return
		}
		data, err := serializer.Serialize(s.serializer, value)
		if err != nil {
			src.Complete(unit{}, err)
			return
		}
		cipher, err := s.crypto.Encrypt(data)
		if err != nil {
			src.Complete(unit{}, cacheerr.Crypto(err))
			return
		}
		_, err = s.backend.insert(key, cipher, expires, typeTag).Wait(context.Background())
		src.Complete(unit{}, err)
	}()
	return res
}

// GetObject fetches, decrypts, and deserializes the value stored under key
// scoped to T's type tag; KeyNotFound if absent or expired.
func GetObject[T any](s *Store, key string) *future.Result[T] {
	typeTag := typeTagFor[T]()
	src, res := future.New[T]()
	go func() {
		var zero T
		if s.isClosed() {
			src.Complete(zero, cacheerr.Disposed())
			return
		}
		outcome, err := s.backend.get(key, typeTag).Wait(context.Background())
		if err == nil && outcome.Err != nil && !cacheerr.IsKeyNotFound(outcome.Err) {
			err = outcome.Err
		}
		if err != nil {
			src.Complete(zero, err)
			return
		}
		if !outcome.Found {
			src.Complete(zero, cacheerr.KeyNotFound(key))
			return
		}
		plain, err := s.crypto.Decrypt(outcome.Value)
		if err != nil {
			src.Complete(zero, cacheerr.Crypto(err))
			return
		}
		value, err := serializer.Deserialize[T](s.serializer, plain)
		if err != nil {
			src.Complete(zero, err)
			return
		}
		src.Complete(value, nil)
	}()
	return res
}

// GetOrCreateObject returns the cached value under key, or evaluates
// factory, inserts, and returns its result on KeyNotFound. Unlike
// GetOrFetchObject this is single-shot: concurrent callers each evaluate
// their own factory rather than sharing one in-flight call.
func GetOrCreateObject[T any](s *Store, key string, factory func() (T, error), expires time.Time) *future.Result[T] {
	src, res := future.New[T]()
	go func() {
		var zero T
		value, err := GetObject[T](s, key).Wait(context.Background())
		if err == nil {
			src.Complete(value, nil)
			return
		}
		if !cacheerr.IsKeyNotFound(err) {
			src.Complete(zero, err)
			return
		}
		created, ferr := factory()
		if ferr != nil {
			src.Complete(zero, ferr)
			return
		}
		if _, ierr := InsertObject[T](s, key, created, expires).Wait(context.Background()); ierr != nil {
			src.Complete(zero, ierr)
			return
		}
		src.Complete(created, nil)
	}()
	return res
}

// GetOrFetchObject is GetOrCreateObject routed through the request cache
// (spec.md §4.5) so concurrent callers for the same (T, key) share exactly
// one fetch evaluation.
func GetOrFetchObject[T any](s *Store, key string, fetch func() (T, error), expires time.Time) *future.Result[T] {
	typeTag := typeTagFor[T]()
	composite := reqcache.Key{TypeTag: typeTag, Key: key}

	shared := s.requests.GetOrCreateRequest(composite, func() (any, error) {
		value, err := GetObject[T](s, key).Wait(context.Background())
		if err == nil {
			return value, nil
		}
		if !cacheerr.IsKeyNotFound(err) {
			return nil, err
		}
		fetched, ferr := fetch()
		if ferr != nil {
			return nil, ferr
		}
		if _, ierr := InsertObject[T](s, key, fetched, expires).Wait(context.Background()); ierr != nil {
			return nil, ierr
		}
		return fetched, nil
	})

	src, res := future.New[T]()
	go func() {
		var zero T
		raw, err := shared.Wait(context.Background())
		if err != nil {
			src.Complete(zero, err)
			return
		}
		value, _ := raw.(T)
		src.Complete(value, nil)
	}()
	return res
}

// FetchStep is one value produced by GetAndFetchLatest's lazy sequence.
type FetchStep[T any] struct {
	Value     T
	Err       error
	FromCache bool
}

// GetAndFetchLatest implements the state machine in spec.md §4.6: { Start
// -> EmitCached? -> EvaluatePredicate -> Fetch -> EmitFetched -> Complete }.
// It emits the cached value first (if present), then, unless predicate
// rejects it, the freshly fetched value (also inserted). predicate may be
// nil, in which case Fetch always runs. The channel is closed after the
// last value and never carries more than two.
func GetAndFetchLatest[T any](s *Store, key string, fetch func() (T, error), predicate func(createdAt time.Time) bool, expires time.Time) <-chan FetchStep[T] {
	typeTag := typeTagFor[T]()
	out := make(chan FetchStep[T], 2)

	go func() {
		defer close(out)

		var cachedCreatedAt time.Time
		cached, err := GetObject[T](s, key).Wait(context.Background())
		switch {
		case err == nil:
			out <- FetchStep[T]{Value: cached, FromCache: true}
			if outcome, caErr := s.backend.getCreatedAt(key, typeTag).Wait(context.Background()); caErr == nil && outcome.Found {
				cachedCreatedAt = outcome.CreatedAt
			}
		case cacheerr.IsKeyNotFound(err):
			// EmitCached? skipped per the state machine.
		default:
			out <- FetchStep[T]{Err: err}
			return
		}

		if predicate != nil && !predicate(cachedCreatedAt) {
			return
		}

		fetched, ferr := fetch()
		if ferr != nil {
			out <- FetchStep[T]{Err: ferr}
			return
		}
		if _, ierr := InsertObject[T](s, key, fetched, expires).Wait(context.Background()); ierr != nil {
			out <- FetchStep[T]{Err: ierr}
			return
		}
		out <- FetchStep[T]{Value: fetched}
	}()

	return out
}

// InvalidateObject removes key scoped to T and evicts it from the request
// cache; the eviction runs regardless of whether the backend call
// succeeded (spec.md §7: "the typed facade ALWAYS evicts the request cache
// regardless of backend failure").
func InvalidateObject[T any](s *Store, key string) *future.Result[unit] {
	typeTag := typeTagFor[T]()
	src, res := future.New[unit]()
	go func() {
		_, err := s.backend.invalidate([]string{key}, typeTag).Wait(context.Background())
		s.requests.RemoveRequestsForKey(key)
		src.Complete(unit{}, err)
	}()
	return res
}

// InvalidateAllObjects removes every entry scoped to T and prefix-evicts
// every composite request-cache entry under T's type tag.
func InvalidateAllObjects[T any](s *Store) *future.Result[unit] {
	typeTag := typeTagFor[T]()
	src, res := future.New[unit]()
	go func() {
		_, err := s.backend.invalidateAll(typeTag).Wait(context.Background())
		s.requests.RemoveRequestsForType(typeTag)
		src.Complete(unit{}, err)
	}()
	return res
}

// GetAllObjects returns every non-expired value stored under T's type tag;
// output order is unspecified (spec.md §4.6).
func GetAllObjects[T any](s *Store) *future.Result[[]T] {
	typeTag := typeTagFor[T]()
	src, res := future.New[[]T]()
	go func() {
		keysOutcome, err := s.backend.getAllKeys(typeTag).Wait(context.Background())
		if err == nil {
			err = keysOutcome.Err
		}
		if err != nil {
			src.Complete(nil, err)
			return
		}
		if len(keysOutcome.Keys) == 0 {
			src.Complete(nil, nil)
			return
		}
		bulkOutcome, err := s.backend.getBulk(keysOutcome.Keys, typeTag).Wait(context.Background())
		if err != nil {
			src.Complete(nil, err)
			return
		}
		values := make([]T, 0, len(bulkOutcome.Pairs))
		for _, kv := range bulkOutcome.Pairs {
			plain, derr := s.crypto.Decrypt(kv.Value)
			if derr != nil {
				continue
			}
			value, verr := serializer.Deserialize[T](s.serializer, plain)
			if verr != nil {
				continue
			}
			values = append(values, value)
		}
		src.Complete(values, nil)
	}()
	return res
}

// InsertObjects bulk-inserts pairs, dispatching to the backend's bulk
// capability (spec.md §4.6); queueBackend expresses this via fan-out +
// coalescing, directBackend via storage.Store's own InsertBulk.
func InsertObjects[T any](s *Store, pairs map[string]T, expires time.Time) *future.Result[unit] {
	typeTag := typeTagFor[T]()
	src, res := future.New[unit]()
	go func() {
		insertPairs := make([]types.InsertPair, 0, len(pairs))
		for key, value := range pairs {
			data, err := serializer.Serialize(s.serializer, value)
			if err != nil {
				src.Complete(unit{}, err)
				return
			}
			cipher, err := s.crypto.Encrypt(data)
			if err != nil {
				src.Complete(unit{}, cacheerr.Crypto(err))
				return
			}
			insertPairs = append(insertPairs, types.InsertPair{Key: key, Value: cipher, Expires: expires})
		}
		if len(insertPairs) == 0 {
			src.Complete(unit{}, nil)
			return
		}
		_, err := s.backend.insertBulk(insertPairs, typeTag).Wait(context.Background())
		src.Complete(unit{}, err)
	}()
	return res
}

// GetObjects bulk-fetches keys, decrypting and deserializing every hit;
// missing/expired keys are simply omitted (spec.md §7: bulk reads are
// per-key).
func GetObjects[T any](s *Store, keys []string) *future.Result[map[string]T] {
	typeTag := typeTagFor[T]()
	src, res := future.New[map[string]T]()
	go func() {
		outcome, err := s.backend.getBulk(keys, typeTag).Wait(context.Background())
		if err != nil {
			src.Complete(nil, err)
			return
		}
		out := make(map[string]T, len(outcome.Pairs))
		for _, kv := range outcome.Pairs {
			plain, derr := s.crypto.Decrypt(kv.Value)
			if derr != nil {
				continue
			}
			value, verr := serializer.Deserialize[T](s.serializer, plain)
			if verr != nil {
				continue
			}
			out[kv.Key] = value
		}
		src.Complete(out, nil)
	}()
	return res
}

// InvalidateObjects bulk-removes keys scoped to T and evicts each from the
// request cache, unconditionally.
func InvalidateObjects[T any](s *Store, keys []string) *future.Result[unit] {
	typeTag := typeTagFor[T]()
	src, res := future.New[unit]()
	go func() {
		_, err := s.backend.invalidate(keys, typeTag).Wait(context.Background())
		for _, key := range keys {
			s.requests.RemoveRequestsForKey(key)
		}
		src.Complete(unit{}, err)
	}()
	return res
}
