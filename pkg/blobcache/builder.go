package blobcache

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"github.com/lacunalabs/blobcache/pkg/cachecrypto"
	"github.com/lacunalabs/blobcache/pkg/queue"
	"github.com/lacunalabs/blobcache/pkg/reqcache"
	"github.com/lacunalabs/blobcache/pkg/scheduler"
	"github.com/lacunalabs/blobcache/pkg/serializer"
	"github.com/lacunalabs/blobcache/pkg/storage"
)

// Options configures a Builder (spec.md §6's "Configuration options").
type Options struct {
	// ApplicationName is used to derive default store paths through the
	// FilesystemProvider.
	ApplicationName string

	// Format and ForcedDateTimeKind configure every Store's Serializer.
	Format             serializer.Format
	ForcedDateTimeKind serializer.DateTimeKind

	// SQLiteDefaults enables SQLite-backed (queued) User/Local/Secure
	// stores; when false, those stores use the bbolt backend directly.
	SQLiteDefaults bool

	// SettingsCachePath overrides the directory the Secure store's
	// database file is created in.
	SettingsCachePath string

	// EncryptionProvider, if set, is applied to the UserAccount,
	// LocalMachine and Secure stores' payloads; Secure requires one. The
	// InMemory store does not encrypt.
	EncryptionProvider cachecrypto.Provider

	// FilesystemProvider overrides default path/IO resolution; the OS
	// default is used when nil.
	FilesystemProvider FilesystemProvider

	// RequestCacheSize bounds each store's completed-request replay table
	// (spec.md §4.5); clamped up to reqcache.DefaultSize.
	RequestCacheSize int

	// QueueIdleFlush and QueueDepthThreshold tune SQLite-backed stores'
	// operation queue (spec.md §4.4); zero selects the queue's defaults.
	QueueIdleFlush      time.Duration
	QueueDepthThreshold int

	// SchedulerQueueDepth bounds the TaskScheduler's pending-work buffer
	// for bolt/memory stores; zero selects the scheduler's default.
	SchedulerQueueDepth int
}

// Builder is the explicit, constructed root object that owns the four
// well-known stores, replacing the original's process-wide singletons
// (spec.md §9 design note).
type Builder struct {
	opts Options
	fs   FilesystemProvider

	mu           sync.Mutex
	userAccount  *Store
	localMachine *Store
	secure       *Store
	inMemory     *Store
}

// NewBuilder constructs a Builder from opts, filling in defaults.
func NewBuilder(opts Options) *Builder {
	if opts.ApplicationName == "" {
		opts.ApplicationName = "blobcache"
	}
	if opts.RequestCacheSize <= 0 {
		opts.RequestCacheSize = reqcache.DefaultSize
	}
	fs := opts.FilesystemProvider
	if fs == nil {
		fs = newOSFilesystemProvider(opts.ApplicationName)
	}
	return &Builder{opts: opts, fs: fs}
}

func (b *Builder) newSerializer() *serializer.Serializer {
	return serializer.New(serializer.Options{Format: b.opts.Format, ForcedDateTimeKind: b.opts.ForcedDateTimeKind})
}

// UserAccount returns the roaming store, building it (and its directory) on
// first use.
func (b *Builder) UserAccount() (*Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.userAccount != nil {
		return b.userAccount, nil
	}
	dir := b.fs.DefaultRoamingDir()
	if err := b.fs.CreateRecursive(dir); err != nil {
		return nil, err
	}
	s, err := b.buildPersistentStore(dir, "userAccount", b.opts.EncryptionProvider)
	if err != nil {
		return nil, err
	}
	b.userAccount = s
	return s, nil
}

// LocalMachine returns the local-machine store, building it on first use.
func (b *Builder) LocalMachine() (*Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.localMachine != nil {
		return b.localMachine, nil
	}
	dir := b.fs.DefaultLocalMachineDir()
	if err := b.fs.CreateRecursive(dir); err != nil {
		return nil, err
	}
	s, err := b.buildPersistentStore(dir, "localMachine", b.opts.EncryptionProvider)
	if err != nil {
		return nil, err
	}
	b.localMachine = s
	return s, nil
}

// Secure returns the encrypted settings store, building it on first use.
// It requires Options.EncryptionProvider to be set.
func (b *Builder) Secure() (*Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.secure != nil {
		return b.secure, nil
	}
	if b.opts.EncryptionProvider == nil {
		return nil, cacheerr.Argument("secure store requires Options.EncryptionProvider")
	}
	dir := b.opts.SettingsCachePath
	if dir == "" {
		dir = b.fs.DefaultSecretDir()
	}
	if err := b.fs.CreateRecursive(dir); err != nil {
		return nil, err
	}
	s, err := b.buildPersistentStore(dir, "secure", b.opts.EncryptionProvider)
	if err != nil {
		return nil, err
	}
	b.secure = s
	return s, nil
}

// InMemory returns the volatile, process-local store, building it on first
// use. It never fails: there is no file to open.
func (b *Builder) InMemory() *Store {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inMemory != nil {
		return b.inMemory
	}
	store := storage.NewMemoryStore()
	sched := scheduler.New(b.opts.SchedulerQueueDepth)
	backend := &directBackend{store: store, sched: sched}
	b.inMemory = newStore("memory", backend, b.newSerializer(), nil, b.opts.RequestCacheSize)
	return b.inMemory
}

// buildPersistentStore opens either a queued SQLite store or a direct
// bbolt store under dir/name, per Options.SQLiteDefaults. It serves the
// UserAccount, LocalMachine and Secure stores; InMemory always uses the
// in-process map, whatever SQLiteDefaults says.
func (b *Builder) buildPersistentStore(dir, name string, crypto cachecrypto.Provider) (*Store, error) {
	if b.opts.SQLiteDefaults {
		return b.buildSQLiteStore(filepath.Join(dir, name+".db"), name, crypto)
	}
	return b.buildBoltStore(filepath.Join(dir, name), name, crypto)
}

func (b *Builder) buildSQLiteStore(path, name string, crypto cachecrypto.Provider) (*Store, error) {
	sqliteStore, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	q := queue.New(sqliteStore, queue.Options{IdleFlush: b.opts.QueueIdleFlush, DepthThreshold: b.opts.QueueDepthThreshold})
	backend := &queueBackend{q: q}
	return newStore(name, backend, b.newSerializer(), crypto, b.opts.RequestCacheSize), nil
}

func (b *Builder) buildBoltStore(dir, name string, crypto cachecrypto.Provider) (*Store, error) {
	if err := b.fs.CreateRecursive(dir); err != nil {
		return nil, err
	}
	boltStore, err := storage.NewBoltStore(dir)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(b.opts.SchedulerQueueDepth)
	backend := &directBackend{store: boltStore, sched: sched}
	return newStore(name, backend, b.newSerializer(), crypto, b.opts.RequestCacheSize), nil
}

// OpenSQLite opens path as a standalone queued SQLite-backed Store, using
// default serialization and no encryption. Unlike UserAccount/LocalMachine/
// Secure it is not one of a Builder's four well-known locations — it exists
// for tools (cmd/blobcachectl) that need a typed-facade handle on an
// arbitrary store file named on the command line.
func OpenSQLite(path string) (*Store, error) {
	b := NewBuilder(Options{})
	return b.buildSQLiteStore(path, "sqlite", nil)
}

// Close disposes every store this Builder has constructed so far, in the
// order UserAccount, LocalMachine, Secure, InMemory; it is idempotent
// because Store.Close itself is.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, s := range []*Store{b.userAccount, b.localMachine, b.secure, b.inMemory} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
