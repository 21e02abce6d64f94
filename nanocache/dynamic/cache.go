// Package dynamic implements the dynamic loading cache. It wraps the entity
// cache and decides, per id and per search key, when cached data is stale
// and must be refreshed from the caller's loaders. Loads never block a
// read: reads return the best available data and refresh in the background.
package dynamic

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/arthur-debert/nanocache/nanocache/entity"
	"github.com/arthur-debert/nanocache/nanocache/future"
	"github.com/arthur-debert/nanocache/nanocache/metrics"
	"github.com/arthur-debert/nanocache/nanocache/option"
	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
	"golang.org/x/sync/singleflight"
)

// Props carries the entity props plus the loaders
type Props[E any, ID comparable, P any] struct {
	entity.Props[E, ID, P]

	// Load fetches one entity. It is required.
	Load types.LoadFunc[E, ID]

	// SearchLoad resolves a search parameter to ids. Without it searches
	// only see what is already cached.
	SearchLoad types.SearchLoadFunc[P, ID]

	// Expiry overrides the TTL per entity
	Expiry types.ExpiryFunc[E]

	// IsEmpty reports a loaded value that stands for "nothing found".
	// Defaults to rejecting nil pointers, maps, slices and interfaces; a
	// zero struct such as {ID: 0} is a real value.
	IsEmpty func(E) bool
}

// Pipe transforms a loaded entity before it is cached
type Pipe[E any] func(ctx context.Context, e E) (E, error)

// LoadRequest customises a single LoadOne call
type LoadRequest[E any] struct {
	// At is recorded as the load time. Zero means now.
	At time.Time

	// Pipe is applied to the loaded entity
	Pipe Pipe[E]
}

// Cache is the dynamic loading cache. It is safe for concurrent use.
type Cache[E any, ID comparable, P any] struct {
	*entity.Cache[E, ID, P]

	load       types.LoadFunc[E, ID]
	searchLoad types.SearchLoadFunc[P, ID]
	expiry     types.ExpiryFunc[E]
	isEmpty    func(E) bool

	ttl       time.Duration
	searchTTL time.Duration
	clock     types.Clock
	logger    *slog.Logger
	metrics   metrics.Recorder

	lockManager *storage.LockManager
	lastLoaded  map[ID]time.Time
	validUntil  map[ID]time.Time
	inFlight    map[ID]*future.Future[E]
	lastErr     map[ID]error

	lastSearched map[string]time.Time
	searching    map[string]int
	searchGroup  singleflight.Group

	pending *future.Tracker
}

// New creates a dynamic loading cache
func New[E any, ID comparable, P any](props Props[E, ID, P], opts ...option.Option) (*Cache[E, ID, P], error) {
	return NewWithSettings(props, option.Apply(opts...))
}

// NewWithSettings creates a dynamic loading cache from resolved settings
func NewWithSettings[E any, ID comparable, P any](props Props[E, ID, P], settings option.Settings) (*Cache[E, ID, P], error) {
	if props.Load == nil {
		return nil, fmt.Errorf("%w: load function is required", types.ErrInvalidArgument)
	}
	if settings.TTL < 0 || settings.SearchTTL < 0 {
		return nil, fmt.Errorf("%w: negative TTL", types.ErrInvalidArgument)
	}

	inner, err := entity.NewWithSettings(props.Props, settings)
	if err != nil {
		return nil, err
	}

	c := &Cache[E, ID, P]{
		Cache:        inner,
		load:         props.Load,
		searchLoad:   props.SearchLoad,
		expiry:       props.Expiry,
		isEmpty:      props.IsEmpty,
		ttl:          settings.TTL,
		searchTTL:    settings.SearchTTL,
		clock:        settings.Clock,
		logger:       settings.Logger,
		metrics:      settings.Metrics,
		lockManager:  storage.NewLockManager(),
		lastLoaded:   make(map[ID]time.Time),
		validUntil:   make(map[ID]time.Time),
		inFlight:     make(map[ID]*future.Future[E]),
		lastErr:      make(map[ID]error),
		lastSearched: make(map[string]time.Time),
		searching:    make(map[string]int),
		pending:      future.NewTracker(),
	}
	if c.isEmpty == nil {
		c.isEmpty = isNil[E]
	}
	inner.OnChange(c.onChange)
	return c, nil
}

// onChange keeps freshness in line with the entity set: any mutation can
// change which ids match a query, and removed ids must load again on the
// next read
func (c *Cache[E, ID, P]) onChange(ch entity.Change[ID]) {
	c.lockManager.Do(storage.WriteOperation, func() {
		clear(c.lastSearched)
		if ch.Op == entity.OpRemove || ch.Op == entity.OpClear {
			for _, id := range ch.IDs {
				delete(c.lastLoaded, id)
				delete(c.validUntil, id)
			}
		}
	})
}

// isStaleLocked reports whether id needs a load. The caller holds the lock.
func (c *Cache[E, ID, P]) isStaleLocked(id ID, now time.Time) bool {
	if _, loading := c.inFlight[id]; loading {
		return false
	}
	last, ok := c.lastLoaded[id]
	if !ok {
		return true
	}
	if until, ok := c.validUntil[id]; ok {
		return now.After(until)
	}
	return !now.Before(last.Add(c.ttl))
}

// IsStale reports whether reading id now would start a load
func (c *Cache[E, ID, P]) IsStale(id ID) bool {
	now := c.clock()
	return storage.With(c.lockManager, storage.ReadOperation, func() bool {
		return c.isStaleLocked(id, now)
	})
}

// GetOne returns the cached entity and starts a background load when it is
// stale. It never blocks on the load.
func (c *Cache[E, ID, P]) GetOne(id ID) (E, bool) {
	e, ok := c.Cache.GetOne(id)
	_, started := c.loadIfStale(context.Background(), id)
	c.metrics.Read(metrics.KindEntity, ok && !started)
	return e, ok
}

// GetMany returns the cached entities for ids, skipping misses, and starts a
// background load for every stale id
func (c *Cache[E, ID, P]) GetMany(ids []ID) []E {
	for _, id := range ids {
		_, started := c.loadIfStale(context.Background(), id)
		c.metrics.Read(metrics.KindEntity, !started)
	}
	return c.Cache.GetMany(ids)
}

// loadIfStale starts a load for id when it is stale. The check and the
// in-flight mark happen under one lock so concurrent readers start at most
// one load.
func (c *Cache[E, ID, P]) loadIfStale(ctx context.Context, id ID) (*future.Future[E], bool) {
	now := c.clock()
	f := future.New[E]()

	var (
		started bool
		prev    previous
	)
	c.lockManager.Do(storage.WriteOperation, func() {
		if !c.isStaleLocked(id, now) {
			return
		}
		started = true
		prev = c.beginLocked(id, now, f)
	})
	if !started {
		return nil, false
	}

	c.run(ctx, id, prev, nil, f)
	return f, true
}

// LoadOne loads id now, even if it is fresh or already loading
func (c *Cache[E, ID, P]) LoadOne(ctx context.Context, id ID) *future.Future[E] {
	return c.LoadOneWith(ctx, id, LoadRequest[E]{})
}

// LoadOneWith is LoadOne with an explicit load time and transform.
// Cancelling ctx does not abort the load; its values are passed on.
func (c *Cache[E, ID, P]) LoadOneWith(ctx context.Context, id ID, req LoadRequest[E]) *future.Future[E] {
	at := req.At
	if at.IsZero() {
		at = c.clock()
	}

	f := future.New[E]()
	var prev previous
	c.lockManager.Do(storage.WriteOperation, func() {
		prev = c.beginLocked(id, at, f)
	})

	c.run(context.WithoutCancel(ctx), id, prev, req.Pipe, f)
	return f
}

// previous is the freshness of an id before a load began, restored when the
// load fails
type previous struct {
	at  time.Time
	had bool
}

// beginLocked marks id in flight and stamps it. The caller holds the lock.
func (c *Cache[E, ID, P]) beginLocked(id ID, at time.Time, f *future.Future[E]) previous {
	prev := previous{}
	prev.at, prev.had = c.lastLoaded[id]
	c.inFlight[id] = f
	c.lastLoaded[id] = at
	delete(c.lastErr, id)
	return prev
}

// run executes the load on its own goroutine and settles f
func (c *Cache[E, ID, P]) run(ctx context.Context, id ID, prev previous, pipe Pipe[E], f *future.Future[E]) {
	c.pending.Add()
	c.metrics.LoadStarted(metrics.KindEntity)
	c.logger.Debug("loading entity", "id", id)

	go func() {
		defer c.pending.Done()
		started := time.Now()

		e, exp, err := c.fetch(ctx, id, pipe)
		if err != nil {
			c.lockManager.Do(storage.WriteOperation, func() {
				if c.inFlight[id] == f {
					delete(c.inFlight, id)
					if prev.had {
						c.lastLoaded[id] = prev.at
					} else {
						delete(c.lastLoaded, id)
					}
				}
				c.lastErr[id] = err
			})
			c.metrics.LoadFinished(metrics.KindEntity, metrics.OutcomeFailure, time.Since(started))
			var zero E
			f.Complete(zero, err)
			return
		}

		c.Cache.SetOne(e)
		c.lockManager.Do(storage.WriteOperation, func() {
			if c.inFlight[id] != f {
				// a newer load owns the expiry
				return
			}
			delete(c.inFlight, id)
			if exp.ok {
				c.validUntil[id] = exp.until
			} else {
				delete(c.validUntil, id)
			}
		})
		c.metrics.LoadFinished(metrics.KindEntity, metrics.OutcomeSuccess, time.Since(started))
		f.Complete(e, nil)
	}()
}

// validity is the expiry a loaded entity carries, if any
type validity struct {
	until time.Time
	ok    bool
}

// fetch calls the loader and validates its result. Every failure is a
// *types.LoadError carrying id.
func (c *Cache[E, ID, P]) fetch(ctx context.Context, id ID, pipe Pipe[E]) (E, validity, error) {
	var zero E

	e, err := c.load(ctx, id)
	if err == nil && pipe != nil {
		e, err = pipe(ctx, e)
	}
	if err != nil {
		c.logger.Warn("entity load failed", "id", id, "error", err)
		return zero, validity{}, types.NewLoadError(id, err)
	}

	if c.isEmpty(e) {
		c.logger.Warn("entity load returned no value", "id", id)
		return zero, validity{}, types.NewLoadError(id, types.ErrEmptyResult)
	}

	if c.expiry == nil {
		return e, validity{}, nil
	}
	until, ok := c.expiry(e)
	if ok && until.IsZero() {
		c.logger.Error("expiry function returned an unusable time", "id", id)
		return zero, validity{}, types.NewLoadError(id, types.ErrInvalidExpiry)
	}
	return e, validity{until: until, ok: ok}, nil
}

func isNil[E any](e E) bool {
	v := reflect.ValueOf(&e).Elem()
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return v.IsNil()
	}
	return false
}

// SetLoaded stores entities that were fetched outside LoadOne, such as a
// page, and stamps them fresh. Ids with a load in flight keep their stamp.
func (c *Cache[E, ID, P]) SetLoaded(entities []E) []ID {
	now := c.clock()
	ids := c.Cache.SetAll(entities)
	c.lockManager.Do(storage.WriteOperation, func() {
		for _, id := range ids {
			if _, loading := c.inFlight[id]; loading {
				continue
			}
			c.lastLoaded[id] = now
			delete(c.validUntil, id)
			delete(c.lastErr, id)
		}
	})
	return ids
}

// InvalidateCache drops freshness for ids, or for every id when none are
// given. Cached entities stay readable while they are refreshed.
func (c *Cache[E, ID, P]) InvalidateCache(ids ...ID) {
	c.lockManager.Do(storage.WriteOperation, func() {
		if len(ids) == 0 {
			clear(c.lastLoaded)
			clear(c.validUntil)
			clear(c.lastErr)
			return
		}
		for _, id := range ids {
			delete(c.lastLoaded, id)
			delete(c.validUntil, id)
			delete(c.lastErr, id)
		}
	})
}

// InvalidateSearchCache drops the freshness of every search result
func (c *Cache[E, ID, P]) InvalidateSearchCache() {
	c.lockManager.Do(storage.WriteOperation, func() {
		clear(c.lastSearched)
	})
}

// LastLoadedAt returns when id was last stamped by a load
func (c *Cache[E, ID, P]) LastLoadedAt(id ID) (time.Time, bool) {
	var (
		at time.Time
		ok bool
	)
	c.lockManager.Do(storage.ReadOperation, func() {
		at, ok = c.lastLoaded[id]
	})
	return at, ok
}

// IsLoading reports whether a load for id is in flight
func (c *Cache[E, ID, P]) IsLoading(id ID) bool {
	return storage.With(c.lockManager, storage.ReadOperation, func() bool {
		_, ok := c.inFlight[id]
		return ok
	})
}

// Wait blocks until no load started by this cache is outstanding
func (c *Cache[E, ID, P]) Wait(ctx context.Context) error {
	return c.pending.Wait(ctx)
}

// Tracker exposes the outstanding-load counter to wrapping layers
func (c *Cache[E, ID, P]) Tracker() *future.Tracker {
	return c.pending
}
