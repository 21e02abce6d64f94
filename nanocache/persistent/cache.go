// Package persistent saves the content of a cache to a key-value storage
// and restores it, either on demand, on construction or whenever another
// process rewrites the stored copy.
package persistent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"

	"github.com/arthur-debert/nanocache/formats"
	"github.com/arthur-debert/nanocache/nanocache/option"
	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
)

// KeyPrefix is prepended to every storage key
const KeyPrefix = "nanocache:"

// Source is the cache whose content is persisted. Every cache layer
// satisfies it.
type Source[E any, ID comparable] interface {
	GetAll() []E
	ReplaceAll(entities []E) []ID
}

// Props configures a persistent cache
type Props[E any, ID comparable] struct {
	// Source is the cache to persist. It is required.
	Source Source[E, ID]

	// Storage holds the serialized entities. It is required.
	Storage storage.KV

	// Key names the stored copy. It is required.
	Key string

	// Codec serializes the entities. Defaults to JSON.
	Codec formats.Codec[E]

	// LoadOnInit restores the stored copy during New
	LoadOnInit bool
}

// Cache persists a source cache
type Cache[E any, ID comparable] struct {
	source Source[E, ID]
	kv     storage.KV
	key    string
	codec  formats.Codec[E]
	logger *slog.Logger

	// checksum of the last payload written or read, so Watch ignores
	// writes it already holds
	lockManager *storage.LockManager
	sum         uint64
	hasSum      bool
}

// New creates a persistent cache. With LoadOnInit the stored copy is
// restored before New returns; a missing copy is not an error.
func New[E any, ID comparable](ctx context.Context, props Props[E, ID], opts ...option.Option) (*Cache[E, ID], error) {
	switch {
	case props.Source == nil:
		return nil, fmt.Errorf("%w: source cache is required", types.ErrInvalidArgument)
	case props.Storage == nil:
		return nil, fmt.Errorf("%w: storage is required", types.ErrInvalidArgument)
	case props.Key == "":
		return nil, fmt.Errorf("%w: storage key is required", types.ErrInvalidArgument)
	}

	settings := option.Apply(opts...)
	c := &Cache[E, ID]{
		source:      props.Source,
		kv:          props.Storage,
		key:         KeyPrefix + props.Key,
		codec:       props.Codec,
		logger:      settings.Logger.With("storage_key", KeyPrefix+props.Key),
		lockManager: storage.NewLockManager(),
	}
	if c.codec == nil {
		c.codec = formats.For[E](formats.JSON)
	}

	if props.LoadOnInit {
		if _, err := c.load(ctx, true); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// StorageKey returns the key the entities are stored under
func (c *Cache[E, ID]) StorageKey() string {
	return c.key
}

// Persist writes every cached entity to storage. The write always happens:
// another process may have replaced the stored copy since the last one.
func (c *Cache[E, ID]) Persist(ctx context.Context) error {
	entities := c.source.GetAll()
	data, err := c.codec.Encode(entities)
	if err != nil {
		return fmt.Errorf("failed to persist %s: %w", c.key, err)
	}

	if err := c.kv.Set(ctx, c.key, data); err != nil {
		return fmt.Errorf("failed to persist %s: %w", c.key, err)
	}
	c.remember(xxhash.Sum64(data))
	c.logger.Debug("persisted entities", "count", len(entities), "bytes", len(data))
	return nil
}

// Load replaces the cache content with the stored copy. It reports false,
// leaving the cache untouched, when nothing is stored.
func (c *Cache[E, ID]) Load(ctx context.Context) (bool, error) {
	return c.load(ctx, false)
}

// load reads the stored copy. With skipUnchanged, a copy matching the last
// checksum is not applied again.
func (c *Cache[E, ID]) load(ctx context.Context, skipUnchanged bool) (bool, error) {
	data, ok, err := c.kv.Get(ctx, c.key)
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", c.key, err)
	}
	if !ok {
		c.logger.Debug("nothing persisted yet")
		return false, nil
	}

	sum := xxhash.Sum64(data)
	if skipUnchanged && c.unchanged(sum) {
		return false, nil
	}

	entities, err := c.codec.Decode(data)
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", c.key, err)
	}

	c.source.ReplaceAll(entities)
	c.remember(sum)
	c.logger.Debug("loaded persisted entities", "count", len(entities))
	return true, nil
}

// Delete removes the stored copy
func (c *Cache[E, ID]) Delete(ctx context.Context) error {
	if err := c.kv.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", c.key, err)
	}
	c.lockManager.Do(storage.WriteOperation, func() {
		c.hasSum = false
	})
	return nil
}

// ErrWatchUnsupported is returned by Watch when the storage cannot report
// external changes
var ErrWatchUnsupported = errors.New("storage backend does not support watching")

// Watch reloads the cache whenever the stored copy changes, until ctx is
// done. Writes that match the last persisted payload, including this
// cache's own, are ignored. Reload failures are logged.
func (c *Cache[E, ID]) Watch(ctx context.Context) error {
	w, ok := c.kv.(storage.Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	return w.Watch(ctx, c.key, func() {
		if _, err := c.load(ctx, true); err != nil {
			c.logger.Warn("failed to reload persisted entities", "error", err)
		}
	})
}

func (c *Cache[E, ID]) unchanged(sum uint64) bool {
	return storage.With(c.lockManager, storage.ReadOperation, func() bool {
		return c.hasSum && c.sum == sum
	})
}

func (c *Cache[E, ID]) remember(sum uint64) {
	c.lockManager.Do(storage.WriteOperation, func() {
		c.sum, c.hasSum = sum, true
	})
}
