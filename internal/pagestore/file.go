package pagestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
)

// FileStore is the on-disk Storage Interface implementation of §4.1(b): one
// file per key under a per-process temp directory, created lazily. Built on
// afero.Fs (as viper itself is, for its own config-file abstraction)
// instead of bare *os.File calls, so tests can swap in an afero.MemMapFs.
type FileStore struct {
	fs      afero.Fs
	dir     string
	mu      sync.Mutex
	dirMade bool
	seq     atomic.Uint64
}

// NewFileStore creates a store rooted at dir, using fs for all I/O. Pass
// afero.NewOsFs() for real disk usage or afero.NewMemMapFs() for tests.
func NewFileStore(fs afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fs, dir: dir}
}

// NewTempFileStore creates a FileStore rooted in a freshly made OS temp
// directory, named by os.MkdirTemp with a random suffix so concurrent
// processes never collide.
func NewTempFileStore(prefix string) (*FileStore, error) {
	dir, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("pagestore: create temp dir: %w", err)
	}
	return NewFileStore(afero.NewOsFs(), dir), nil
}

func (f *FileStore) ensureDir() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dirMade {
		return nil
	}
	// recursive=true, tolerating "already exists" the way §4.1 requires.
	if err := f.fs.MkdirAll(f.dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	f.dirMade = true
	return nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, sanitizeKey(key))
}

// SavePage publishes atomically: write to a sibling temp file, then rename
// over the final path, so a concurrent loadPage never observes a partial
// write.
func (f *FileStore) SavePage(key string, data []byte) error {
	if err := f.ensureDir(); err != nil {
		return fmt.Errorf("pagestore: savePage %q: %w", key, err)
	}

	final := f.path(key)
	tmp := final + ".tmp." + strconv.FormatUint(f.seq.Add(1), 36)

	if err := afero.WriteFile(f.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("pagestore: savePage %q: write temp: %w", key, err)
	}
	if err := f.fs.Rename(tmp, final); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("pagestore: savePage %q: publish: %w", key, err)
	}
	return nil
}

func (f *FileStore) LoadPage(key string) ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pagestore: loadPage %q: %w", key, err)
	}
	return data, nil
}

// DeletePage treats "absent" as success, per §4.1.
func (f *FileStore) DeletePage(key string) error {
	err := f.fs.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("pagestore: deletePage %q: %w", key, err)
	}
	return nil
}

func (f *FileStore) PageExists(key string) (bool, error) {
	ok, err := afero.Exists(f.fs, f.path(key))
	if err != nil {
		return false, fmt.Errorf("pagestore: pageExists %q: %w", key, err)
	}
	return ok, nil
}

// Dir reports the root directory backing this store.
func (f *FileStore) Dir() string { return f.dir }

func sanitizeKey(key string) string {
	// Page keys are opaque strings generated internally (never user
	// filenames), but guard against path separators defensively.
	b := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == filepath.Separator || c == '/' || c == '\\' {
			b = append(b, '_')
			continue
		}
		b = append(b, c)
	}
	return string(b)
}
