// Package pagination adds page-by-page loading on top of the dynamic cache.
// Pages are read from the sorted entity set; when a page reaches past what
// is materialized, the next page is fetched from the caller's page loader
// with the last known entity as continuation cursor. At most one page load
// runs at a time.
package pagination

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/arthur-debert/nanocache/nanocache/dynamic"
	"github.com/arthur-debert/nanocache/nanocache/entity"
	"github.com/arthur-debert/nanocache/nanocache/future"
	"github.com/arthur-debert/nanocache/nanocache/metrics"
	"github.com/arthur-debert/nanocache/nanocache/option"
	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
)

// Props carries the dynamic props plus the page loader
type Props[E any, ID comparable, P any] struct {
	dynamic.Props[E, ID, P]

	// PageLoad fetches one page. It is required.
	PageLoad types.PageLoadFunc[E, ID]
}

// Cache is the pagination cache. It is safe for concurrent use.
type Cache[E any, ID comparable, P any] struct {
	*dynamic.Cache[E, ID, P]

	pageLoad types.PageLoadFunc[E, ID]
	logger   *slog.Logger
	metrics  metrics.Recorder

	lockManager *storage.LockManager

	// lastContiguousIndex is the last index the previous page load
	// confirmed, math.MaxInt once the source ran out and -1 after any
	// mutation
	lastContiguousIndex int
	loading             *future.Future[[]E]
}

// New creates a pagination cache
func New[E any, ID comparable, P any](props Props[E, ID, P], opts ...option.Option) (*Cache[E, ID, P], error) {
	return NewWithSettings(props, option.Apply(opts...))
}

// NewWithSettings creates a pagination cache from resolved settings
func NewWithSettings[E any, ID comparable, P any](props Props[E, ID, P], settings option.Settings) (*Cache[E, ID, P], error) {
	if props.PageLoad == nil {
		return nil, fmt.Errorf("%w: page load function is required", types.ErrInvalidArgument)
	}

	inner, err := dynamic.NewWithSettings(props.Props, settings)
	if err != nil {
		return nil, err
	}

	c := &Cache[E, ID, P]{
		Cache:               inner,
		pageLoad:            props.PageLoad,
		logger:              settings.Logger,
		metrics:             settings.Metrics,
		lockManager:         storage.NewLockManager(),
		lastContiguousIndex: -1,
	}
	inner.OnChange(c.onChange)
	return c, nil
}

// onChange forgets what the last page load confirmed: the sorted positions
// it vouched for may have shifted
func (c *Cache[E, ID, P]) onChange(entity.Change[ID]) {
	c.lockManager.Do(storage.WriteOperation, func() {
		c.lastContiguousIndex = -1
	})
	c.Hub().Trigger(types.PaginatedKey)
}

// bounds returns [min, max) for a page
func bounds(size, page int) (int, int, error) {
	if size < 1 {
		return 0, 0, fmt.Errorf("%w: page size %d", types.ErrInvalidArgument, size)
	}
	if page < 0 {
		return 0, 0, fmt.Errorf("%w: page number %d", types.ErrInvalidArgument, page)
	}
	return size * page, size*page + size, nil
}

// GetPaginated returns the materialized entities of page number page, in
// sort order. The slice is shorter than size when the page has not arrived
// yet or the data is exhausted. When the page reaches past the materialized
// entities and no page load is running, the next page is loaded in the
// background.
func (c *Cache[E, ID, P]) GetPaginated(size, page int) ([]E, error) {
	minIndex, maxIndex, err := bounds(size, page)
	if err != nil {
		return nil, err
	}

	entities := c.GetAll()
	if len(entities) < maxIndex && c.needsPage(maxIndex) {
		var (
			lastLoaded *ID
			lastIndex  = len(entities) - 1
		)
		if len(entities) > 0 {
			id := c.ID(entities[lastIndex])
			lastLoaded = &id
		}
		c.LoadPaginated(context.Background(), size, page, lastLoaded, lastIndex)
		c.metrics.Read(metrics.KindPage, false)
	} else {
		c.metrics.Read(metrics.KindPage, true)
	}

	if minIndex >= len(entities) {
		return []E{}, nil
	}
	return entities[minIndex:min(maxIndex, len(entities))], nil
}

func (c *Cache[E, ID, P]) needsPage(maxIndex int) bool {
	return storage.With(c.lockManager, storage.ReadOperation, func() bool {
		return c.loading == nil && c.lastContiguousIndex < maxIndex
	})
}

// LoadPaginated fetches a page starting at size*page, continuing after
// lastLoaded at lastIndex. If a page load is already running, its result
// is returned instead and no second fetch starts.
func (c *Cache[E, ID, P]) LoadPaginated(ctx context.Context, size, page int, lastLoaded *ID, lastIndex int) *future.Future[[]E] {
	minIndex, _, err := bounds(size, page)
	if err != nil {
		return future.Resolved[[]E](nil, err)
	}

	f := future.New[[]E]()
	running := storage.With(c.lockManager, storage.WriteOperation, func() *future.Future[[]E] {
		if c.loading != nil {
			return c.loading
		}
		c.loading = f
		return nil
	})
	if running != nil {
		return running
	}

	req := types.PageRequest[ID]{
		LastLoaded: lastLoaded,
		LastIndex:  lastIndex,
		Limit:      size,
		Offset:     minIndex,
	}
	c.run(context.WithoutCancel(ctx), req, f)
	return f
}

// IsPageLoading reports whether a page load is running
func (c *Cache[E, ID, P]) IsPageLoading() bool {
	return storage.With(c.lockManager, storage.ReadOperation, func() bool {
		return c.loading != nil
	})
}

func (c *Cache[E, ID, P]) run(ctx context.Context, req types.PageRequest[ID], f *future.Future[[]E]) {
	tracker := c.Tracker()
	tracker.Add()
	c.metrics.LoadStarted(metrics.KindPage)
	c.logger.Debug("loading page", "offset", req.Offset, "limit", req.Limit, "last_index", req.LastIndex)

	go func() {
		defer tracker.Done()
		started := time.Now()

		entities, err := c.pageLoad(ctx, req)
		if err != nil {
			c.lockManager.Do(storage.WriteOperation, func() {
				c.loading = nil
			})
			c.logger.Warn("page load failed", "offset", req.Offset, "error", err)
			c.metrics.LoadFinished(metrics.KindPage, metrics.OutcomeFailure, time.Since(started))
			f.Complete(nil, fmt.Errorf("page at offset %d: %w", req.Offset, err))
			return
		}

		// the mutation resets the index, so it is recorded afterwards
		c.SetLoaded(entities)
		total := c.Len()
		c.lockManager.Do(storage.WriteOperation, func() {
			c.lastContiguousIndex = total - 1
			// a short page right after the materialized entities means the
			// source is exhausted; a gap before the offset proves nothing
			if len(entities) < req.Limit && req.Offset <= req.LastIndex+1 {
				c.lastContiguousIndex = math.MaxInt
			}
			c.loading = nil
		})
		c.metrics.LoadFinished(metrics.KindPage, metrics.OutcomeSuccess, time.Since(started))
		f.Complete(entities, nil)
	}()
}
