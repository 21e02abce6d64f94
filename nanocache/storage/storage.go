// Package storage provides the key-value persistence capability used by the
// persistent cache. It defines the KV interface and implementations for
// memory, a directory of JSON files, SQLite and buntdb.
package storage

import (
	"context"
	"fmt"

	"github.com/arthur-debert/nanocache/types"
)

// KV stores opaque blobs under string keys
type KV interface {
	// Get returns the blob stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the storage
	Close() error
}

// Watcher is implemented by backends that can report external changes
type Watcher interface {
	// Watch calls fn whenever key changes outside this process, until ctx
	// is done
	Watch(ctx context.Context, key string, fn func()) error
}

// Open creates the backend described by cfg
func Open(cfg types.StorageConfig) (KV, error) {
	switch cfg.Backend {
	case types.MemoryBackend, "":
		return NewMemoryStore(), nil
	case types.FileBackend:
		return NewFileStore(cfg.Path)
	case types.SQLiteBackend:
		return NewSQLiteStore(cfg.Path)
	case types.BuntBackend:
		return NewBuntStore(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", types.ErrInvalidArgument, cfg.Backend)
	}
}
