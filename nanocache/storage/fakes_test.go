package storage

import (
	"context"
	"io/fs"
	"os"
	"sync"
	"time"
)

var (
	_ FileSystem      = (*memFS)(nil)
	_ FileLockFactory = (*fakeLocks)(nil)
)

// memFS keeps files in a map. The *Err fields make the matching call fail.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	ReadErr   error
	WriteErr  error
	RenameErr error
	MkdirErr  error
}

func newMemFS() *memFS {
	return &memFS{files: map[string][]byte{}, dirs: map[string]bool{}}
}

func (m *memFS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	data, ok := m.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (m *memFS) WriteFile(name string, data []byte, _ fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.files[name] = append([]byte(nil), data...)
	return nil
}

func (m *memFS) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RenameErr != nil {
		return m.RenameErr
	}
	data, ok := m.files[oldpath]
	if !ok {
		return os.ErrNotExist
	}
	m.files[newpath] = data
	delete(m.files, oldpath)
	return nil
}

func (m *memFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return os.ErrNotExist
	}
	delete(m.files, name)
	return nil
}

func (m *memFS) MkdirAll(path string, _ fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MkdirErr != nil {
		return m.MkdirErr
	}
	m.dirs[path] = true
	return nil
}

func (m *memFS) content(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	return data, ok
}

func (m *memFS) hasDir(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[path]
}

// fakeLock counts acquisitions and releases
type fakeLock struct {
	mu      sync.Mutex
	held    bool
	err     error
	locks   int
	unlocks int
}

func (l *fakeLock) TryLockContext(context.Context, time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.held = true
	l.locks++
	return true, nil
}

func (l *fakeLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.unlocks++
	return nil
}

func (l *fakeLock) counts() (locks, unlocks int, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locks, l.unlocks, l.held
}

// fakeLocks hands out one fakeLock per path. err is copied into new locks.
type fakeLocks struct {
	mu    sync.Mutex
	locks map[string]*fakeLock
	err   error
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{locks: map[string]*fakeLock{}}
}

func (f *fakeLocks) New(path string) FileLock {
	return f.get(path)
}

func (f *fakeLocks) get(path string) *fakeLock {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[path]
	if !ok {
		l = &fakeLock{err: f.err}
		f.locks[path] = l
	}
	return l
}
