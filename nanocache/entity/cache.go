// Package entity implements the entity cache: an identity index plus a
// lazily computed search index that is dropped on every mutation. Every
// mutation is announced on the global entities channel and on the channel
// of each affected id.
package entity

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/arthur-debert/nanocache/nanocache/canonical"
	"github.com/arthur-debert/nanocache/nanocache/identity"
	"github.com/arthur-debert/nanocache/nanocache/notify"
	"github.com/arthur-debert/nanocache/nanocache/option"
	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
)

// Props carries the functions that depend on the entity type
type Props[E any, ID comparable, P any] struct {
	// SelectID is required
	SelectID types.SelectIDFunc[E, ID]

	// Sort orders GetAll and search results. Defaults to id order.
	Sort types.SortFunc[E]

	// Search evaluates a search parameter against one entity. Without it,
	// searches return nothing unless results are stored explicitly.
	Search types.SearchFunc[P, E]
}

// Op is the kind of mutation reported to change hooks
type Op int

const (
	OpSet Op = iota
	OpRemove
	OpReplace
	OpClear
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpRemove:
		return "remove"
	case OpReplace:
		return "replace"
	case OpClear:
		return "clear"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Change describes one mutation. For OpReplace, IDs holds the removed ids
// followed by the ids of the new content.
type Change[ID comparable] struct {
	Op  Op
	IDs []ID
}

// Cache is the entity cache. It is safe for concurrent use.
type Cache[E any, ID comparable, P any] struct {
	index    *identity.Index[E, ID]
	search   types.SearchFunc[P, E]
	settings option.Settings
	logger   *slog.Logger

	// guards the pairing of index mutations with result purges
	lockManager *storage.LockManager
	results     resultStore[ID]

	hooksMu  sync.Mutex
	hooks    map[int]func(Change[ID])
	nextHook int
}

// New creates an empty entity cache
func New[E any, ID comparable, P any](props Props[E, ID, P], opts ...option.Option) (*Cache[E, ID, P], error) {
	return NewWithSettings(props, option.Apply(opts...))
}

// NewWithSettings creates an empty entity cache from resolved settings.
// Wrapping layers use it to share their settings with the inner cache.
func NewWithSettings[E any, ID comparable, P any](props Props[E, ID, P], settings option.Settings) (*Cache[E, ID, P], error) {
	var indexOpts []option.Option
	if settings.Collation != nil {
		indexOpts = append(indexOpts, option.WithCollation(*settings.Collation))
	}
	index, err := identity.New(props.SelectID, props.Sort, indexOpts...)
	if err != nil {
		return nil, err
	}
	if settings.SearchCacheSize < 0 {
		return nil, fmt.Errorf("%w: search cache size %d", types.ErrInvalidArgument, settings.SearchCacheSize)
	}

	return &Cache[E, ID, P]{
		index:       index,
		search:      props.Search,
		settings:    settings,
		logger:      settings.Logger,
		lockManager: storage.NewLockManager(),
		results:     newResultStore[ID](settings.SearchCacheSize),
		hooks:       make(map[int]func(Change[ID])),
	}, nil
}

// Settings returns the resolved settings the cache was built with
func (c *Cache[E, ID, P]) Settings() option.Settings {
	return c.settings
}

// Hub returns the hub the cache triggers
func (c *Cache[E, ID, P]) Hub() *notify.Hub {
	return c.settings.Hub
}

// Subscribe registers fn for the given channels on the cache's hub
func (c *Cache[E, ID, P]) Subscribe(fn notify.Callback, keys ...string) *notify.Subscription {
	return c.settings.Hub.Subscribe(fn, keys...)
}

// OnChange registers a hook that runs after every mutation, before
// observers are triggered. The returned function removes the hook.
func (c *Cache[E, ID, P]) OnChange(fn func(Change[ID])) (remove func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	id := c.nextHook
	c.nextHook++
	c.hooks[id] = fn
	return func() {
		c.hooksMu.Lock()
		defer c.hooksMu.Unlock()
		delete(c.hooks, id)
	}
}

// changed runs the hooks and triggers the per-id and global channels. The
// hooks run inside the batch, so whatever they trigger reaches observers
// together with the entity channels.
func (c *Cache[E, ID, P]) changed(op Op, ids []ID) {
	batch := c.settings.Hub.Begin()
	defer batch.End()

	c.hooksMu.Lock()
	hooks := make([]func(Change[ID]), 0, len(c.hooks))
	for _, fn := range c.hooks {
		hooks = append(hooks, fn)
	}
	c.hooksMu.Unlock()

	change := Change[ID]{Op: op, IDs: ids}
	for _, fn := range hooks {
		fn(change)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, types.EntityKey(id))
	}
	keys = append(keys, types.EntitiesKey)
	c.settings.Hub.Trigger(keys...)
}

// ID returns the id of e
func (c *Cache[E, ID, P]) ID(e E) ID {
	return c.index.ID(e)
}

// Compare orders two entities the way GetAll does
func (c *Cache[E, ID, P]) Compare(a, b E) int {
	return c.index.Compare(a, b)
}

// SetOne stores e and returns its id
func (c *Cache[E, ID, P]) SetOne(e E) ID {
	var id ID
	c.lockManager.Do(storage.WriteOperation, func() {
		id = c.index.Add(e)
		c.results.Purge()
	})
	c.changed(OpSet, []ID{id})
	return id
}

// SetAll stores every entity and returns their ids in input order.
// Observers are informed once, after all entities are stored.
func (c *Cache[E, ID, P]) SetAll(entities []E) []ID {
	batch := c.settings.Hub.Begin()
	defer batch.End()

	var ids []ID
	c.lockManager.Do(storage.WriteOperation, func() {
		ids = c.index.AddAll(entities)
		c.results.Purge()
	})
	c.changed(OpSet, ids)
	return ids
}

// ReplaceAll swaps the content for entities and returns the ids that
// disappeared. A nil or empty slice clears the cache.
func (c *Cache[E, ID, P]) ReplaceAll(entities []E) []ID {
	batch := c.settings.Hub.Begin()
	defer batch.End()

	var removed []ID
	c.lockManager.Do(storage.WriteOperation, func() {
		removed = c.index.ReplaceAll(entities)
		c.results.Purge()
	})

	affected := make([]ID, 0, len(removed)+len(entities))
	affected = append(affected, removed...)
	for _, e := range entities {
		affected = append(affected, c.index.ID(e))
	}
	c.changed(OpReplace, affected)

	c.logger.Debug("replaced entities", "count", len(entities), "removed", len(removed))
	return removed
}

// Clear removes every entity and returns the removed ids in sort order
func (c *Cache[E, ID, P]) Clear() []ID {
	batch := c.settings.Hub.Begin()
	defer batch.End()

	var removed []ID
	c.lockManager.Do(storage.WriteOperation, func() {
		removed = c.index.Clear()
		c.results.Purge()
	})
	c.changed(OpClear, removed)
	return removed
}

// RemoveOne removes e by id. ok is false when it was not cached.
func (c *Cache[E, ID, P]) RemoveOne(e E) (id ID, ok bool) {
	c.lockManager.Do(storage.WriteOperation, func() {
		id, ok = c.index.RemoveOne(e)
		c.results.Purge()
	})
	if ok {
		c.changed(OpRemove, []ID{id})
	}
	return id, ok
}

// RemoveOneByID removes and returns the entity cached under id
func (c *Cache[E, ID, P]) RemoveOneByID(id ID) (removed E, ok bool) {
	c.lockManager.Do(storage.WriteOperation, func() {
		removed, ok = c.index.RemoveOneByID(id)
		c.results.Purge()
	})
	if ok {
		c.changed(OpRemove, []ID{id})
	}
	return removed, ok
}

// GetOne returns the entity cached under id
func (c *Cache[E, ID, P]) GetOne(id ID) (E, bool) {
	return c.index.Get(id)
}

// GetMany returns the cached entities for ids in input order, skipping misses
func (c *Cache[E, ID, P]) GetMany(ids []ID) []E {
	return c.index.GetMany(ids)
}

// GetAll returns every cached entity in sort order
func (c *Cache[E, ID, P]) GetAll() []E {
	return c.index.GetAll()
}

// GetAllMapped returns a copy of the id to entity map
func (c *Cache[E, ID, P]) GetAllMapped() map[ID]E {
	return c.index.GetAllMapped()
}

// Has reports whether id is cached
func (c *Cache[E, ID, P]) Has(id ID) bool {
	return c.index.Has(id)
}

// Len returns the number of cached entities
func (c *Cache[E, ID, P]) Len() int {
	return c.index.Len()
}

// SearchKey returns the canonical key of a search parameter
func (c *Cache[E, ID, P]) SearchKey(param P) string {
	return canonical.Key(param)
}

// Search returns the entities matching param, in sort order. Ids of a stored
// result that are no longer cached are skipped.
func (c *Cache[E, ID, P]) Search(param P) []E {
	return c.index.GetMany(c.SearchIDs(param))
}

// SearchIDs returns the ids matching param. The result is computed on first
// use and cached under the canonical key until the next mutation.
func (c *Cache[E, ID, P]) SearchIDs(param P) []ID {
	key := c.SearchKey(param)

	return storage.With(c.lockManager, storage.ReadOperation, func() []ID {
		if ids, ok := c.results.Get(key); ok {
			return slices.Clone(ids)
		}
		if c.search == nil {
			return []ID{}
		}

		ids := []ID{}
		for _, e := range c.index.GetAll() {
			if c.search(param, e) {
				ids = append(ids, c.index.ID(e))
			}
		}
		c.results.Add(key, ids)
		return slices.Clone(ids)
	})
}

// CachedSearchIDs returns the stored result for a canonical key without
// computing it
func (c *Cache[E, ID, P]) CachedSearchIDs(key string) ([]ID, bool) {
	var (
		ids []ID
		ok  bool
	)
	c.lockManager.Do(storage.ReadOperation, func() {
		ids, ok = c.results.Get(key)
	})
	return slices.Clone(ids), ok
}

// StoreSearchResult records ids as the result for a canonical key and
// informs observers of the entities channel
func (c *Cache[E, ID, P]) StoreSearchResult(key string, ids []ID) {
	c.lockManager.Do(storage.WriteOperation, func() {
		c.results.Add(key, slices.Clone(ids))
	})
	c.settings.Hub.Trigger(types.EntitiesKey)
}

// SearchWithOwnFilter returns the cached entities accepted by filter, in
// sort order. Nothing is cached.
func (c *Cache[E, ID, P]) SearchWithOwnFilter(filter func(E) bool) []E {
	var result []E
	for _, e := range c.index.GetAll() {
		if filter(e) {
			result = append(result, e)
		}
	}
	return result
}

// OrderIDs returns ids with the cached ones in sort order first, followed by
// the ids that are not cached, in the order they were given
func (c *Cache[E, ID, P]) OrderIDs(ids []ID) []ID {
	mapped := c.index.GetAllMapped()

	var (
		present []E
		absent  []ID
		seen    = make(map[ID]struct{}, len(ids))
	)
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if e, ok := mapped[id]; ok {
			present = append(present, e)
		} else {
			absent = append(absent, id)
		}
	}

	slices.SortStableFunc(present, c.index.Compare)
	ordered := make([]ID, 0, len(present)+len(absent))
	for _, e := range present {
		ordered = append(ordered, c.index.ID(e))
	}
	return append(ordered, absent...)
}

// SearchCacheLen returns the number of stored search results
func (c *Cache[E, ID, P]) SearchCacheLen() int {
	return c.results.Len()
}
