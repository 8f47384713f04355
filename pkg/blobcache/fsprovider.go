package blobcache

import (
	"io"
	"os"
	"path/filepath"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
)

// FilesystemProvider is the collaborator the Builder uses to resolve default
// store locations and perform raw file I/O (spec.md §6): "open_for_read,
// open_for_write, create_recursive, delete, default_roaming_dir,
// default_local_machine_dir, default_secret_dir".
type FilesystemProvider interface {
	OpenForRead(path string) (io.ReadCloser, error)
	OpenForWrite(path string) (io.WriteCloser, error)
	CreateRecursive(path string) error
	Delete(path string) error
	DefaultRoamingDir() string
	DefaultLocalMachineDir() string
	DefaultSecretDir() string
}

// osFilesystemProvider is the default FilesystemProvider: plain os/filepath
// calls rooted under the user's OS-standard config/cache directories.
type osFilesystemProvider struct {
	appName string
}

func newOSFilesystemProvider(appName string) *osFilesystemProvider {
	return &osFilesystemProvider{appName: appName}
}

func (p *osFilesystemProvider) OpenForRead(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cacheerr.IO(path, err)
	}
	return f, nil
}

func (p *osFilesystemProvider) OpenForWrite(path string) (io.WriteCloser, error) {
	if err := p.CreateRecursive(filepath.Dir(path)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, cacheerr.IO(path, err)
	}
	return f, nil
}

func (p *osFilesystemProvider) CreateRecursive(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return cacheerr.IO(path, err)
	}
	return nil
}

func (p *osFilesystemProvider) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return cacheerr.IO(path, err)
	}
	return nil
}

func (p *osFilesystemProvider) DefaultRoamingDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, p.appName)
}

func (p *osFilesystemProvider) DefaultLocalMachineDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, p.appName)
}

func (p *osFilesystemProvider) DefaultSecretDir() string {
	return filepath.Join(p.DefaultLocalMachineDir(), "secret")
}
