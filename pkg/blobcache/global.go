package blobcache

import (
	"sync"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
)

// Package-level compatibility accessor over an installed Builder (spec.md
// §9 design note: "expose a thin global accessor only for legacy
// compatibility with a Disposed post-shutdown check").
var (
	globalMu       sync.Mutex
	globalBuilder  *Builder
	globalDisposed bool
)

// Init installs builder as the target of the package-level
// UserAccount/LocalMachine/Secure/InMemory accessors.
func Init(builder *Builder) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalBuilder = builder
	globalDisposed = false
}

// UserAccount returns the global Builder's roaming store.
func UserAccount() (*Store, error) {
	b, err := activeBuilder()
	if err != nil {
		return nil, err
	}
	return b.UserAccount()
}

// LocalMachine returns the global Builder's local-machine store.
func LocalMachine() (*Store, error) {
	b, err := activeBuilder()
	if err != nil {
		return nil, err
	}
	return b.LocalMachine()
}

// Secure returns the global Builder's encrypted settings store.
func Secure() (*Store, error) {
	b, err := activeBuilder()
	if err != nil {
		return nil, err
	}
	return b.Secure()
}

// InMemory returns the global Builder's volatile store.
func InMemory() (*Store, error) {
	b, err := activeBuilder()
	if err != nil {
		return nil, err
	}
	return b.InMemory(), nil
}

// Shutdown disposes the installed Builder's stores and marks the package
// disposed; every accessor above returns cacheerr.ErrDisposed afterward.
func Shutdown() error {
	globalMu.Lock()
	b := globalBuilder
	globalDisposed = true
	globalMu.Unlock()

	if b == nil {
		return nil
	}
	return b.Close()
}

func activeBuilder() (*Builder, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalDisposed {
		return nil, cacheerr.Disposed()
	}
	if globalBuilder == nil {
		return nil, cacheerr.Argument("blobcache.Init must be called before using the global accessors")
	}
	return globalBuilder, nil
}
