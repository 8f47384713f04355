package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"github.com/lacunalabs/blobcache/pkg/log"
	"github.com/lacunalabs/blobcache/pkg/types"
)

// schemaDDL matches spec.md §4.3's exact column layout: Key is the primary
// key, TypeName is indexed so type-scoped enumeration/invalidation avoids a
// full scan, and both DateTime columns are 64-bit tick counts.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS CacheEntry (
	Key        TEXT PRIMARY KEY,
	TypeName   TEXT NULL,
	Value      BLOB NOT NULL,
	CreatedAt  INTEGER NOT NULL,
	Expiration INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entry_type ON CacheEntry (TypeName);
`

// SQLiteStore implements Store over a single mattn/go-sqlite3 connection
// opened in WAL mode. The pool holds that one connection only, so reads and
// writes are serialized on it, per §5's single-writer-per-backend model. This is the backend the operation queue
// (pkg/queue) fronts; unlike BoltStore it is never called directly by the
// typed facade on a persistent store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. path may be ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, cacheerr.IO("", fmt.Errorf("open sqlite store %q: %w", path, err))
	}

	// SQLite allows exactly one writer; a single pooled connection turns
	// concurrent callers into a queue on this connection instead of
	// surfacing "database is locked" from a second connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, cacheerr.IO("", fmt.Errorf("set WAL mode: %w", err))
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, cacheerr.IO("", fmt.Errorf("set synchronous=NORMAL: %w", err))
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, cacheerr.IO("", fmt.Errorf("apply schema: %w", err))
	}

	log.WithComponent("storage").Debug().Str("path", path).Msg("sqlite store opened")
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying *sql.DB; cmd/blobcachectl's inspect command
// queries it directly. pkg/queue does not use it: it calls the store's own
// bulk methods.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Insert(key string, value []byte, expires time.Time, typeTag string) error {
	if key == "" {
		return cacheerr.Argument("key must not be empty")
	}
	_, err := s.db.Exec(
		`INSERT INTO CacheEntry (Key, TypeName, Value, CreatedAt, Expiration)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(Key) DO UPDATE SET TypeName=excluded.TypeName, Value=excluded.Value,
		   CreatedAt=excluded.CreatedAt, Expiration=excluded.Expiration`,
		key, nullableTypeTag(typeTag), value, types.ToTicks(time.Now().UTC()), expirationTicks(expires),
	)
	if err != nil {
		return cacheerr.IO(key, err)
	}
	return nil
}

func (s *SQLiteStore) InsertBulk(pairs []types.InsertPair, typeTag string) error {
	if len(pairs) == 0 {
		return cacheerr.Argument("insert_bulk requires a non-empty list")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return cacheerr.IO("", err)
	}

	now := types.ToTicks(time.Now().UTC())
	stmt, err := tx.Prepare(
		`INSERT INTO CacheEntry (Key, TypeName, Value, CreatedAt, Expiration)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(Key) DO UPDATE SET TypeName=excluded.TypeName, Value=excluded.Value,
		   CreatedAt=excluded.CreatedAt, Expiration=excluded.Expiration`,
	)
	if err != nil {
		_ = tx.Rollback()
		return cacheerr.IO("", err)
	}
	defer stmt.Close()

	for _, p := range pairs {
		if p.Key == "" {
			_ = tx.Rollback()
			return cacheerr.Argument("key must not be empty")
		}
		if _, err := stmt.Exec(p.Key, nullableTypeTag(typeTag), p.Value, now, expirationTicks(p.Expires)); err != nil {
			_ = tx.Rollback()
			return cacheerr.IO(p.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cacheerr.IO("", err)
	}
	return nil
}

func (s *SQLiteStore) Get(key string, typeTag string) ([]byte, error) {
	row := s.db.QueryRow(
		`SELECT Value, Expiration FROM CacheEntry WHERE Key = ? AND TypeName IS ?`,
		key, nullableTypeTag(typeTag),
	)
	var (
		value      []byte
		expiration int64
	)
	if err := row.Scan(&value, &expiration); err != nil {
		if err == sql.ErrNoRows {
			return nil, cacheerr.KeyNotFound(key)
		}
		return nil, cacheerr.IO(key, err)
	}
	if ticksExpired(expiration, time.Now().UTC()) {
		return nil, cacheerr.KeyNotFound(key)
	}
	return value, nil
}

func (s *SQLiteStore) GetBulk(keys []string, typeTag string) ([]KeyValue, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, nullableTypeTag(typeTag))

	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT Key, Value, Expiration FROM CacheEntry WHERE Key IN (%s) AND TypeName IS ?`, placeholders),
		args...,
	)
	if err != nil {
		return nil, cacheerr.IO("", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var out []KeyValue
	for rows.Next() {
		var (
			key        string
			value      []byte
			expiration int64
		)
		if err := rows.Scan(&key, &value, &expiration); err != nil {
			return nil, cacheerr.IO("", err)
		}
		if ticksExpired(expiration, now) {
			continue
		}
		out = append(out, KeyValue{Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, cacheerr.IO("", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetAllKeys(typeTag string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT Key, Expiration FROM CacheEntry WHERE TypeName IS ?`, nullableTypeTag(typeTag),
	)
	if err != nil {
		return nil, cacheerr.Enumeration(err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var keys []string
	for rows.Next() {
		var (
			key        string
			expiration int64
		)
		if err := rows.Scan(&key, &expiration); err != nil {
			return nil, cacheerr.Enumeration(err)
		}
		if !ticksExpired(expiration, now) {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, cacheerr.Enumeration(err)
	}
	return keys, nil
}

func (s *SQLiteStore) GetCreatedAt(key string, typeTag string) (time.Time, bool, error) {
	row := s.db.QueryRow(
		`SELECT CreatedAt, Expiration FROM CacheEntry WHERE Key = ? AND TypeName IS ?`,
		key, nullableTypeTag(typeTag),
	)
	var createdAt, expiration int64
	if err := row.Scan(&createdAt, &expiration); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, cacheerr.IO(key, err)
	}
	if ticksExpired(expiration, time.Now().UTC()) {
		return time.Time{}, false, nil
	}
	return types.FromTicks(createdAt), true, nil
}

func (s *SQLiteStore) Invalidate(keys []string, typeTag string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, nullableTypeTag(typeTag))

	_, err := s.db.Exec(
		fmt.Sprintf(`DELETE FROM CacheEntry WHERE Key IN (%s) AND TypeName IS ?`, placeholders),
		args...,
	)
	if err != nil {
		return cacheerr.IO("", err)
	}
	return nil
}

func (s *SQLiteStore) InvalidateAll(typeTag string) error {
	var err error
	if typeTag == "" {
		_, err = s.db.Exec(`DELETE FROM CacheEntry`)
	} else {
		_, err = s.db.Exec(`DELETE FROM CacheEntry WHERE TypeName = ?`, typeTag)
	}
	if err != nil {
		return cacheerr.IO("", err)
	}
	return nil
}

// Vacuum removes expired rows then runs SQLite's own VACUUM to reclaim and
// compact the file, per the Open Question resolution in SPEC_FULL.md §D.
func (s *SQLiteStore) Vacuum() error {
	if _, err := s.db.Exec(`DELETE FROM CacheEntry WHERE Expiration != ? AND Expiration <= ?`,
		types.MaxTicks, types.ToTicks(time.Now().UTC())); err != nil {
		return cacheerr.IO("", err)
	}
	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return cacheerr.IO("", err)
	}
	return nil
}

// Flush is a no-op: SQLite durability is per-statement once WAL has synced,
// matching spec.md §4.3.
func (s *SQLiteStore) Flush(typeTag string) error {
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullableTypeTag converts the empty type tag into a SQL NULL so that
// "TypeName IS ?" matches NULL-tagged (blob-level) rows correctly; SQLite's
// `IS` operator treats NULL as an ordinary comparable value, unlike `=`.
func nullableTypeTag(typeTag string) any {
	if typeTag == "" {
		return nil
	}
	return typeTag
}

// expirationTicks stores the MaxTicks sentinel for a zero/never expiry.
func expirationTicks(expires time.Time) int64 {
	if types.NeverExpires(expires) {
		return types.MaxTicks
	}
	return types.ToTicks(expires)
}

// ticksExpired reports expiry the same way types.CacheEntry.Expired does:
// an entry with expires-at <= now is logically absent (spec.md §3).
func ticksExpired(expiration int64, now time.Time) bool {
	if expiration == types.MaxTicks {
		return false
	}
	return !types.FromTicks(expiration).After(now)
}
