package dynamic

import (
	"context"
	"fmt"
	"time"

	"github.com/arthur-debert/nanocache/nanocache/future"
	"github.com/arthur-debert/nanocache/nanocache/metrics"
	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
)

// Search returns the cached entities matching param and starts a search
// load in the background when the result for param is stale
func (c *Cache[E, ID, P]) Search(param P) []E {
	c.searchIfStale(param)
	return c.Cache.Search(param)
}

// SearchIDs is Search returning ids
func (c *Cache[E, ID, P]) SearchIDs(param P) []ID {
	c.searchIfStale(param)
	return c.Cache.SearchIDs(param)
}

// isSearchStaleLocked mirrors isStaleLocked for search keys
func (c *Cache[E, ID, P]) isSearchStaleLocked(key string, now time.Time) bool {
	if c.searching[key] > 0 {
		return false
	}
	last, ok := c.lastSearched[key]
	if !ok {
		return true
	}
	return !now.Before(last.Add(c.searchTTL))
}

func (c *Cache[E, ID, P]) searchIfStale(param P) {
	if c.searchLoad == nil {
		return
	}

	key := c.SearchKey(param)
	now := c.clock()

	// check and mark under one lock so concurrent readers start one load
	stale := storage.With(c.lockManager, storage.WriteOperation, func() bool {
		if !c.isSearchStaleLocked(key, now) {
			return false
		}
		c.searching[key]++
		return true
	})
	c.metrics.Read(metrics.KindSearch, !stale)
	if stale {
		c.startSearch(context.Background(), key, param)
	}
}

// IsSearchLoading reports whether a search load for param is in flight
func (c *Cache[E, ID, P]) IsSearchLoading(param P) bool {
	key := c.SearchKey(param)
	return storage.With(c.lockManager, storage.ReadOperation, func() bool {
		return c.searching[key] > 0
	})
}

// LoadSearched loads the ids for param, then every stale entity among them.
// The returned ids are in entity order once all entity loads settled.
// Concurrent calls for structurally equal parameters share one load.
func (c *Cache[E, ID, P]) LoadSearched(ctx context.Context, param P) *future.Future[[]ID] {
	if c.searchLoad == nil {
		return future.Resolved[[]ID](nil, fmt.Errorf("%w: search", types.ErrNoLoader))
	}
	return c.loadSearched(context.WithoutCancel(ctx), c.SearchKey(param), param)
}

func (c *Cache[E, ID, P]) loadSearched(ctx context.Context, key string, param P) *future.Future[[]ID] {
	c.lockManager.Do(storage.WriteOperation, func() {
		c.searching[key]++
	})
	return c.startSearch(ctx, key, param)
}

// startSearch runs or joins the load for key. The caller has already
// counted itself in c.searching.
func (c *Cache[E, ID, P]) startSearch(ctx context.Context, key string, param P) *future.Future[[]ID] {
	f := future.New[[]ID]()
	c.pending.Add()

	ch := c.searchGroup.DoChan(key, func() (any, error) {
		return c.runSearch(ctx, key, param)
	})

	go func() {
		defer c.pending.Done()
		res := <-ch

		c.lockManager.Do(storage.WriteOperation, func() {
			if c.searching[key]--; c.searching[key] <= 0 {
				delete(c.searching, key)
			}
		})

		ids, _ := res.Val.([]ID)
		f.Complete(ids, res.Err)
	}()
	return f
}

// runSearch resolves key, loads the stale ids it returned and stores the
// result in entity order
func (c *Cache[E, ID, P]) runSearch(ctx context.Context, key string, param P) ([]ID, error) {
	started := time.Now()
	c.metrics.LoadStarted(metrics.KindSearch)
	c.logger.Debug("loading search", "key", key)

	ids, err := c.searchLoad(ctx, param)
	if err != nil {
		c.logger.Warn("search load failed", "key", key, "error", err)
		c.metrics.LoadFinished(metrics.KindSearch, metrics.OutcomeFailure, time.Since(started))
		return nil, fmt.Errorf("search %s: %w", key, err)
	}

	c.Cache.StoreSearchResult(key, ids)
	c.stampSearch(key)

	// Start every entity load before anyone is told about the new result
	var loads []*future.Future[E]
	batch := c.Hub().Begin()
	for _, id := range ids {
		if f, started := c.loadIfStale(ctx, id); started {
			loads = append(loads, f)
		}
	}
	batch.End()

	failed := 0
	for _, err := range future.All(ctx, loads...) {
		if err != nil {
			failed++
		}
	}

	// Entity loads arrive in any order and each one purged the stored
	// result, so publish it again in entity order
	ordered := c.Cache.OrderIDs(ids)
	batch = c.Hub().Begin()
	c.Cache.StoreSearchResult(key, ordered)
	c.stampSearch(key)
	batch.End()

	c.logger.Debug("search settled", "key", key, "ids", len(ids), "loaded", len(loads), "failed", failed)
	c.metrics.LoadFinished(metrics.KindSearch, metrics.OutcomeSuccess, time.Since(started))
	return ordered, nil
}

func (c *Cache[E, ID, P]) stampSearch(key string) {
	now := c.clock()
	c.lockManager.Do(storage.WriteOperation, func() {
		c.lastSearched[key] = now
	})
}
