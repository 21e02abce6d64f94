package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// Constants for file locking
const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond

	watchDebounce = 100 * time.Millisecond
)

// FileStoreOption modifies FileStore configuration
type FileStoreOption func(*FileStore)

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) FileStoreOption {
	return func(s *FileStore) {
		s.fs = fs
	}
}

// WithFileLockFactory sets a custom FileLockFactory implementation
func WithFileLockFactory(factory FileLockFactory) FileStoreOption {
	return func(s *FileStore) {
		s.lockFactory = factory
	}
}

// FileStore keeps one file per key inside a directory. Writes go to a temp
// file that is renamed into place, and every read or write holds a
// cross-process lock on the key's ".lock" file.
type FileStore struct {
	dir         string
	fs          FileSystem
	lockFactory FileLockFactory
	lockManager *LockManager
}

// NewFileStore creates a file store rooted at dir, creating it if needed
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file storage needs a directory")
	}

	s := &FileStore{
		dir:         dir,
		lockManager: NewLockManager(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Set defaults for dependencies not provided via options
	if s.fs == nil {
		s.fs = osFileSystem{}
	}
	if s.lockFactory == nil {
		s.lockFactory = flockFactory{}
	}

	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return s, nil
}

// Path returns the file that holds key
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, fileName(key))
}

// fileName maps a key to a portable file name. Characters outside
// [A-Za-z0-9._-] are replaced, and a hash suffix keeps distinct keys apart.
func fileName(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return fmt.Sprintf("%s-%016x.json", safe, xxhash.Sum64String(key))
}

// Get implements KV.Get
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data []byte
		ok   bool
	)
	err := s.lockManager.Execute(ReadOperation, func() error {
		return s.withFileLock(ctx, key, func(path string) error {
			content, err := s.fs.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			data, ok = content, true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return data, ok, nil
}

// Set implements KV.Set
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	return s.lockManager.Execute(WriteOperation, func() error {
		return s.withFileLock(ctx, key, func(path string) error {
			// Write to file atomically (write to temp file, then rename)
			tmpFile := path + ".tmp"
			if err := s.fs.WriteFile(tmpFile, value, 0644); err != nil {
				return fmt.Errorf("failed to write temp file: %w", err)
			}
			if err := s.fs.Rename(tmpFile, path); err != nil {
				_ = s.fs.Remove(tmpFile)
				return fmt.Errorf("failed to rename file: %w", err)
			}
			return nil
		})
	})
}

// Delete implements KV.Delete
func (s *FileStore) Delete(ctx context.Context, key string) error {
	return s.lockManager.Execute(WriteOperation, func() error {
		return s.withFileLock(ctx, key, func(path string) error {
			if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove file: %w", err)
			}
			return nil
		})
	})
}

// Close implements KV.Close
func (s *FileStore) Close() error {
	return nil
}

// withFileLock runs fn while holding the key's cross-process lock
func (s *FileStore) withFileLock(ctx context.Context, key string, fn func(path string) error) error {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	path := s.Path(key)
	lock := s.lockFactory.New(path + ".lock")
	if err := acquireLock(ctx, lock); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	return fn(path)
}

// acquireLock attempts to acquire an exclusive file lock with retry logic
func acquireLock(ctx context.Context, lock FileLock) error {
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}

// Watch implements Watcher. Bursts of events are debounced so fn runs once
// per settled write.
func (s *FileStore) Watch(ctx context.Context, key string, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	target := s.Path(key)
	go func() {
		defer func() { _ = watcher.Close() }()

		var debounceTimer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(watchDebounce, fn)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
