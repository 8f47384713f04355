// Package types defines the core data structures shared across the blob
// cache engine: the persisted entry shape, tick-based time encoding, and the
// operation-queue item kinds the coalescer groups by.
package types

import "time"

// TicksPerSecond is the number of 100-nanosecond ticks in one second.
const TicksPerSecond = 10_000_000

// ticksEpoch is the fixed epoch ticks are counted from: 0001-01-01 UTC,
// matching the wire format of the system this engine reimplements.
var ticksEpoch = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

// MaxTicks is the sentinel stored for "never expires".
const MaxTicks int64 = 1<<63 - 1

// ToTicks converts a wall-clock instant to the on-disk tick encoding.
func ToTicks(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	t = t.UTC()
	return (t.Unix()-ticksEpoch.Unix())*TicksPerSecond + int64(t.Nanosecond())/100
}

// FromTicks converts the on-disk tick encoding back to a UTC instant. The
// MaxTicks sentinel converts to the maximum representable instant rather
// than a magic bool, so callers can compare it like any other time.Time.
func FromTicks(ticks int64) time.Time {
	if ticks == MaxTicks {
		return time.Unix(1<<62, 0).UTC()
	}
	return time.Unix(ticksEpoch.Unix()+ticks/TicksPerSecond, (ticks%TicksPerSecond)*100).UTC()
}

// NeverExpires reports whether an expiry instant represents "never expires".
func NeverExpires(t time.Time) bool {
	return ToTicks(t) == MaxTicks || t.IsZero()
}

// CacheEntry is one row of the blob cache: an opaque key mapped to a byte
// payload with an optional type tag and absolute expiration instant.
type CacheEntry struct {
	Key       string
	TypeName  string // empty for blob-level (untyped) entries
	Value     []byte
	CreatedAt time.Time
	ExpiresAt time.Time // "never" sentinel when unset, see NeverExpires
}

// Expired reports whether the entry is logically absent at instant now.
func (e *CacheEntry) Expired(now time.Time) bool {
	if NeverExpires(e.ExpiresAt) {
		return false
	}
	return !e.ExpiresAt.After(now)
}

// OperationKind identifies the kind of work a QueueItem carries. Only the
// Bulk* kinds are coalescable (spec.md §4.4); the rest pass through the
// queue unchanged.
type OperationKind int

const (
	OpBulkGet OperationKind = iota
	OpBulkInsert
	OpBulkInvalidate
	OpGetAllKeys
	OpInvalidateAll
	OpVacuum
	OpGetCreatedAt
)

func (k OperationKind) String() string {
	switch k {
	case OpBulkGet:
		return "BulkGet"
	case OpBulkInsert:
		return "BulkInsert"
	case OpBulkInvalidate:
		return "BulkInvalidate"
	case OpGetAllKeys:
		return "GetAllKeys"
	case OpInvalidateAll:
		return "InvalidateAll"
	case OpVacuum:
		return "Vacuum"
	case OpGetCreatedAt:
		return "GetCreatedAt"
	default:
		return "Unknown"
	}
}

// Coalescable reports whether items of this kind may be collapsed into one
// physical operation by the queue (spec.md §4.4 step 3).
func (k OperationKind) Coalescable() bool {
	switch k {
	case OpBulkGet, OpBulkInsert, OpBulkInvalidate:
		return true
	default:
		return false
	}
}

// InsertPair is one (key, bytes) tuple submitted to a bulk insert, carrying
// its own expiry so callers can batch inserts with different lifetimes.
type InsertPair struct {
	Key     string
	Value   []byte
	Expires time.Time
}
