package dynamic

import (
	"context"

	"github.com/arthur-debert/nanocache/nanocache/future"
	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
)

// Result is a read that distinguishes "still loading" from "failed"
type Result[E any] struct {
	State future.State
	Value E
	Err   error

	// Loading is the in-flight load, when there is one
	Loading *future.Future[E]
}

// Read returns the cached entity as Success. Without a cached entity it
// reports Pending while a load is in flight and Failure when the last load
// failed. Like GetOne it starts a load when id is stale, except after a
// failure, which only an explicit LoadOne or InvalidateCache retries.
func (c *Cache[E, ID, P]) Read(id ID) Result[E] {
	if e, ok := c.Cache.GetOne(id); ok {
		f, _ := c.loadIfStale(context.Background(), id)
		return Result[E]{State: future.Success, Value: e, Loading: f}
	}

	var (
		loading *future.Future[E]
		lastErr error
	)
	c.lockManager.Do(storage.ReadOperation, func() {
		loading = c.inFlight[id]
		lastErr = c.lastErr[id]
	})
	if loading == nil && lastErr != nil {
		return Result[E]{State: future.Failure, Err: lastErr}
	}
	if loading == nil {
		loading, _ = c.loadIfStale(context.Background(), id)
	}
	if loading == nil {
		// another reader may have started it in between
		c.lockManager.Do(storage.ReadOperation, func() {
			loading = c.inFlight[id]
		})
	}
	if loading == nil {
		return Result[E]{State: future.Failure, Err: types.NewLoadError(id, types.ErrNotFound)}
	}

	value, err := loading.Result()
	switch loading.State() {
	case future.Success:
		return Result[E]{State: future.Success, Value: value, Loading: loading}
	case future.Failure:
		return Result[E]{State: future.Failure, Err: err, Loading: loading}
	default:
		return Result[E]{State: future.Pending, Loading: loading}
	}
}
