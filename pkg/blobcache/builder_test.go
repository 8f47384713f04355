package blobcache

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/lacunalabs/blobcache/pkg/cachecrypto"
)

func TestBuilderInMemoryReturnsSameInstanceEachCall(t *testing.T) {
	b := NewBuilder(Options{ApplicationName: "test"})
	t.Cleanup(func() { _ = b.Close() })

	first := b.InMemory()
	second := b.InMemory()
	if first != second {
		t.Fatal("InMemory() returned different instances across calls")
	}
}

func TestBuilderSecureRequiresEncryptionProvider(t *testing.T) {
	b := NewBuilder(Options{ApplicationName: "test"})
	t.Cleanup(func() { _ = b.Close() })

	if _, err := b.Secure(); err == nil {
		t.Fatal("Secure() succeeded without an EncryptionProvider, want error")
	}
}

func TestBuilderUserAccountUsesBoltWhenSQLiteDefaultsDisabled(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(Options{
		ApplicationName:    "test",
		SQLiteDefaults:     false,
		FilesystemProvider: &fixedDirProvider{dir: dir},
	})
	t.Cleanup(func() { _ = b.Close() })

	s, err := b.UserAccount()
	if err != nil {
		t.Fatalf("UserAccount: %v", err)
	}
	if _, ok := s.backend.(*directBackend); !ok {
		t.Fatalf("backend = %T, want *directBackend", s.backend)
	}
}

func TestBuilderUserAccountUsesQueueWhenSQLiteDefaultsEnabled(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(Options{
		ApplicationName:    "test",
		SQLiteDefaults:     true,
		FilesystemProvider: &fixedDirProvider{dir: dir},
	})
	t.Cleanup(func() { _ = b.Close() })

	s, err := b.UserAccount()
	if err != nil {
		t.Fatalf("UserAccount: %v", err)
	}
	if _, ok := s.backend.(*queueBackend); !ok {
		t.Fatalf("backend = %T, want *queueBackend", s.backend)
	}
}

func TestBuilderSecureEncryptsPayloadsOnDisk(t *testing.T) {
	dir := t.TempDir()
	provider, err := cachecrypto.NewAESGCMProviderFromPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("NewAESGCMProviderFromPassword: %v", err)
	}
	b := NewBuilder(Options{
		ApplicationName:    "test",
		EncryptionProvider: provider,
		FilesystemProvider: &fixedDirProvider{dir: dir},
	})
	t.Cleanup(func() { _ = b.Close() })

	s, err := b.Secure()
	if err != nil {
		t.Fatalf("Secure: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := InsertObject(s, "k", widget{ID: "secret"}, time.Time{}).Wait(ctx); err != nil {
		t.Fatalf("InsertObject: %v", err)
	}
	got, err := GetObject[widget](s, "k").Wait(ctx)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if got.ID != "secret" {
		t.Fatalf("got.ID = %q, want secret", got.ID)
	}

	raw, err := s.backend.(*directBackend).store.Get("k", typeTagFor[widget]())
	if err != nil {
		t.Fatalf("raw store Get: %v", err)
	}
	if bytes.Contains(raw, []byte("secret")) {
		t.Fatal("stored bytes contain the plaintext ID, want ciphertext")
	}
}

// fixedDirProvider is a test FilesystemProvider whose default directories
// all resolve under one temp directory, so builder tests don't touch the
// real OS config/cache paths.
type fixedDirProvider struct {
	dir string
}

func (p *fixedDirProvider) OpenForRead(path string) (io.ReadCloser, error) {
	return newOSFilesystemProvider("").OpenForRead(path)
}

func (p *fixedDirProvider) OpenForWrite(path string) (io.WriteCloser, error) {
	return newOSFilesystemProvider("").OpenForWrite(path)
}

func (p *fixedDirProvider) CreateRecursive(path string) error {
	return newOSFilesystemProvider("").CreateRecursive(path)
}

func (p *fixedDirProvider) Delete(path string) error {
	return newOSFilesystemProvider("").Delete(path)
}

func (p *fixedDirProvider) DefaultRoamingDir() string {
	return filepath.Join(p.dir, "roaming")
}

func (p *fixedDirProvider) DefaultLocalMachineDir() string {
	return filepath.Join(p.dir, "local")
}

func (p *fixedDirProvider) DefaultSecretDir() string {
	return filepath.Join(p.dir, "secret")
}
