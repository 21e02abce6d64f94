package dynamic

import (
	"cmp"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arthur-debert/nanocache/nanocache/entity"
	"github.com/arthur-debert/nanocache/nanocache/future"
	"github.com/arthur-debert/nanocache/nanocache/metrics"
	"github.com/arthur-debert/nanocache/nanocache/option"
	"github.com/arthur-debert/nanocache/testutil"
	"github.com/arthur-debert/nanocache/types"
)

type itemCache = Cache[testutil.Item, int, string]

func newItemCache(t *testing.T, loader *testutil.Loader, opts ...option.Option) *itemCache {
	t.Helper()
	c, err := New(Props[testutil.Item, int, string]{
		Props: entity.Props[testutil.Item, int, string]{SelectID: testutil.ItemID},
		Load:  loader.Load,
	}, opts...)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

func wait(t *testing.T, w interface{ Wait(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Wait(ctx); err != nil {
		t.Fatalf("loads did not settle: %v", err)
	}
}

func TestGetOneReadThrough(t *testing.T) {
	loader := testutil.NewLoader()
	c := newItemCache(t, loader)

	if _, ok := c.GetOne(1); ok {
		t.Fatal("empty cache should miss")
	}
	wait(t, c)

	got, ok := c.GetOne(1)
	if !ok || got.Value != "item-1" {
		t.Errorf("expected loaded item, got %+v (%v)", got, ok)
	}
	if loader.Calls(1) != 1 {
		t.Errorf("expected one load, got %d", loader.Calls(1))
	}
}

func TestConcurrentReadsLoadOnce(t *testing.T) {
	loader := testutil.NewLoader()
	loader.Hold()
	c := newItemCache(t, loader)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.GetOne(1 + i%2)
		}(i)
	}
	wg.Wait()

	if !c.IsLoading(1) || !c.IsLoading(2) {
		t.Error("expected both ids in flight")
	}
	loader.Release()
	wait(t, c)

	if loader.Calls(1) != 1 || loader.Calls(2) != 1 {
		t.Errorf("expected one load per id, got %d and %d", loader.Calls(1), loader.Calls(2))
	}
}

func TestInvalidateCache(t *testing.T) {
	loader := testutil.NewLoader()
	c := newItemCache(t, loader)

	c.GetMany([]int{1, 2, 3})
	wait(t, c)
	if loader.Total() != 3 {
		t.Fatalf("expected 3 loads, got %d", loader.Total())
	}

	t.Run("all ids", func(t *testing.T) {
		c.InvalidateCache()
		for i := 0; i < 5; i++ {
			c.GetOne(1)
			c.GetOne(2)
		}
		wait(t, c)

		if loader.Calls(1) != 2 || loader.Calls(2) != 2 {
			t.Errorf("expected exactly one reload per stale id, got %d and %d", loader.Calls(1), loader.Calls(2))
		}
		if loader.Calls(3) != 1 {
			t.Errorf("id 3 was not read and should not reload, got %d", loader.Calls(3))
		}
	})

	t.Run("one id keeps the cached value during refresh", func(t *testing.T) {
		c.InvalidateCache(3)
		loader.Hold()
		got, ok := c.GetOne(3)
		if !ok || got.ID != 3 {
			t.Errorf("stale value should still be returned, got %+v (%v)", got, ok)
		}
		loader.Release()
		wait(t, c)
		if loader.Calls(3) != 2 {
			t.Errorf("expected reload of id 3, got %d", loader.Calls(3))
		}
	})
}

func TestStalenessBoundary(t *testing.T) {
	clock := testutil.NewClock()
	loader := testutil.NewLoader()
	c := newItemCache(t, loader, option.WithTTL(10*time.Second), option.WithClock(clock.Now))

	loaded := clock.Now()
	if _, err := c.LoadOne(context.Background(), 1).Wait(context.Background()); err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if at, ok := c.LastLoadedAt(1); !ok || !at.Equal(loaded) {
		t.Errorf("expected load time %v, got %v (%v)", loaded, at, ok)
	}

	if c.IsStale(1) {
		t.Error("fresh at T")
	}
	clock.Advance(10*time.Second - time.Millisecond)
	if c.IsStale(1) {
		t.Error("fresh just before T+TTL")
	}
	clock.Advance(time.Millisecond)
	if !c.IsStale(1) {
		t.Error("stale at exactly T+TTL")
	}

	c.GetOne(1)
	wait(t, c)
	if loader.Calls(1) != 2 {
		t.Errorf("stale read should reload, got %d loads", loader.Calls(1))
	}
}

func TestDynamicExpiry(t *testing.T) {
	clock := testutil.NewClock()
	start := clock.Now()
	loader := testutil.NewLoader()

	c, err := New(Props[testutil.Item, int, string]{
		Props: entity.Props[testutil.Item, int, string]{SelectID: testutil.ItemID},
		Load:  loader.Load,
		Expiry: func(i testutil.Item) (time.Time, bool) {
			if i.ID == 1 {
				return start.Add(time.Minute), true
			}
			return time.Time{}, false
		},
	}, option.WithTTL(10*time.Second), option.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	c.GetMany([]int{1, 2})
	wait(t, c)

	clock.Advance(30 * time.Second)
	if c.IsStale(1) {
		t.Error("id 1 is valid for a minute regardless of TTL")
	}
	if !c.IsStale(2) {
		t.Error("id 2 follows the TTL")
	}

	clock.Advance(30 * time.Second)
	if c.IsStale(1) {
		t.Error("id 1 is still valid at its expiry instant")
	}
	clock.Advance(time.Millisecond)
	if !c.IsStale(1) {
		t.Error("id 1 is stale after its expiry")
	}
}

func TestInvalidExpiryIsConfigurationError(t *testing.T) {
	loader := testutil.NewLoader()
	c, err := New(Props[testutil.Item, int, string]{
		Props:  entity.Props[testutil.Item, int, string]{SelectID: testutil.ItemID},
		Load:   loader.Load,
		Expiry: func(testutil.Item) (time.Time, bool) { return time.Time{}, true },
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	_, err = c.LoadOne(context.Background(), 1).Wait(context.Background())
	if !errors.Is(err, types.ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry, got %v", err)
	}
	if !types.IsConfigurationError(err) {
		t.Error("invalid expiry should be a configuration error")
	}
	if c.Has(1) {
		t.Error("entity with invalid expiry should not be cached")
	}
}

func TestZeroValues(t *testing.T) {
	ctx := context.Background()

	t.Run("zero struct is a value", func(t *testing.T) {
		type counter struct{ ID int }
		c, err := New(Props[counter, int, string]{
			Props: entity.Props[counter, int, string]{SelectID: func(c counter) int { return c.ID }},
			Load:  func(_ context.Context, id int) (counter, error) { return counter{ID: id}, nil },
		})
		if err != nil {
			t.Fatalf("failed to create cache: %v", err)
		}

		got, err := c.LoadOne(ctx, 0).Wait(ctx)
		if err != nil {
			t.Fatalf("loading id 0 failed: %v", err)
		}
		if got != (counter{}) || !c.Has(0) {
			t.Errorf("expected {ID: 0} to be cached, got %+v", got)
		}
	})

	t.Run("nil pointer is empty", func(t *testing.T) {
		c, err := New(Props[*testutil.Item, int, string]{
			Props: entity.Props[*testutil.Item, int, string]{SelectID: func(i *testutil.Item) int { return i.ID }},
			Load:  func(context.Context, int) (*testutil.Item, error) { return nil, nil },
		})
		if err != nil {
			t.Fatalf("failed to create cache: %v", err)
		}

		if _, err := c.LoadOne(ctx, 1).Wait(ctx); !errors.Is(err, types.ErrEmptyResult) {
			t.Errorf("expected ErrEmptyResult, got %v", err)
		}
	})
}

func TestSupersededLoadKeepsNewerExpiry(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock()
	release := make(chan struct{})
	var calls atomic.Int32

	c, err := New(Props[testutil.Item, int, string]{
		Props: entity.Props[testutil.Item, int, string]{SelectID: testutil.ItemID},
		Load: func(_ context.Context, id int) (testutil.Item, error) {
			if calls.Add(1) == 1 {
				<-release
				return testutil.Item{ID: id, Value: "old"}, nil
			}
			return testutil.Item{ID: id, Value: "new"}, nil
		},
		// only the first answer carries its own expiry
		Expiry: func(i testutil.Item) (time.Time, bool) {
			return clock.Now().Add(time.Hour), i.Value == "old"
		},
	}, option.WithClock(clock.Now), option.WithTTL(time.Minute))
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	older := c.LoadOne(ctx, 1)
	if _, err := c.LoadOne(ctx, 1).Wait(ctx); err != nil {
		t.Fatalf("newer load failed: %v", err)
	}
	close(release)
	if _, err := older.Wait(ctx); err != nil {
		t.Fatalf("older load failed: %v", err)
	}
	wait(t, c)

	clock.Advance(2 * time.Minute)
	if !c.IsStale(1) {
		t.Error("the superseded load should not extend the validity")
	}
}

func TestLoadFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("loader error", func(t *testing.T) {
		boom := errors.New("boom")
		loader := testutil.NewLoader()
		loader.Fail(4, boom)
		c := newItemCache(t, loader)

		_, err := c.LoadOne(ctx, 4).Wait(ctx)
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		var loadErr *types.LoadError
		if !errors.As(err, &loadErr) || loadErr.ID != 4 {
			t.Errorf("expected LoadError for id 4, got %v", err)
		}

		if c.IsLoading(4) {
			t.Error("in-flight flag should be cleared")
		}
		if _, ok := c.LastLoadedAt(4); ok {
			t.Error("load time should be rolled back")
		}

		loader.Fail(4, nil)
		c.GetOne(4)
		wait(t, c)
		if !c.Has(4) || loader.Calls(4) != 2 {
			t.Errorf("read after failure should retry, got %d loads", loader.Calls(4))
		}
	})

	t.Run("empty result", func(t *testing.T) {
		loader := testutil.NewLoader()
		loader.Empty(3)
		c, err := New(Props[testutil.Item, int, string]{
			Props:   entity.Props[testutil.Item, int, string]{SelectID: testutil.ItemID},
			Load:    loader.Load,
			IsEmpty: func(i testutil.Item) bool { return i.Value == "" },
		})
		if err != nil {
			t.Fatalf("failed to create cache: %v", err)
		}

		_, err = c.LoadOne(ctx, 3).Wait(ctx)
		if !errors.Is(err, types.ErrEmptyResult) {
			t.Fatalf("expected ErrEmptyResult, got %v", err)
		}
		if !strings.Contains(err.Error(), "could not load value for 3") {
			t.Errorf("error should identify the id, got %q", err)
		}
		if c.Has(3) {
			t.Error("empty result should not be cached")
		}
	})

	t.Run("failure keeps the previous freshness", func(t *testing.T) {
		clock := testutil.NewClock()
		loader := testutil.NewLoader()
		c := newItemCache(t, loader, option.WithClock(clock.Now))

		first := clock.Now()
		if _, err := c.LoadOne(ctx, 1).Wait(ctx); err != nil {
			t.Fatalf("failed to load: %v", err)
		}

		clock.Advance(time.Second)
		loader.Fail(1, errors.New("down"))
		if _, err := c.LoadOne(ctx, 1).Wait(ctx); err == nil {
			t.Fatal("expected failure")
		}

		if at, _ := c.LastLoadedAt(1); !at.Equal(first) {
			t.Errorf("expected load time restored to %v, got %v", first, at)
		}
		if got, ok := c.GetOne(1); !ok || got.ID != 1 {
			t.Error("previously loaded value should survive a failed reload")
		}
	})
}

func TestLoadOne(t *testing.T) {
	ctx := context.Background()

	t.Run("pipe transforms the result", func(t *testing.T) {
		c := newItemCache(t, testutil.NewLoader())
		got, err := c.LoadOneWith(ctx, 1, LoadRequest[testutil.Item]{
			Pipe: func(_ context.Context, i testutil.Item) (testutil.Item, error) {
				i.Value = strings.ToUpper(i.Value)
				return i, nil
			},
		}).Wait(ctx)
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if got.Value != "ITEM-1" {
			t.Errorf("expected piped value, got %q", got.Value)
		}
		if cached, _ := c.Cache.GetOne(1); cached.Value != "ITEM-1" {
			t.Errorf("piped value should be cached, got %q", cached.Value)
		}
	})

	t.Run("explicit load time", func(t *testing.T) {
		c := newItemCache(t, testutil.NewLoader())
		at := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
		f := c.LoadOneWith(ctx, 1, LoadRequest[testutil.Item]{At: at})
		if got, _ := c.LastLoadedAt(1); !got.Equal(at) {
			t.Errorf("expected stamp %v before the load settles, got %v", at, got)
		}
		if _, err := f.Wait(ctx); err != nil {
			t.Fatalf("failed to load: %v", err)
		}
	})

	t.Run("explicit loads are not coalesced", func(t *testing.T) {
		loader := testutil.NewLoader()
		loader.Hold()
		c := newItemCache(t, loader)

		a := c.LoadOne(ctx, 1)
		b := c.LoadOne(ctx, 1)
		loader.Release()
		future.All(ctx, a, b)
		wait(t, c)

		if loader.Calls(1) != 2 {
			t.Errorf("expected two independent loads, got %d", loader.Calls(1))
		}
		if c.IsLoading(1) {
			t.Error("no load should remain in flight")
		}
	})

	t.Run("cancelled context does not abort", func(t *testing.T) {
		loader := testutil.NewLoader()
		c := newItemCache(t, loader)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := c.LoadOne(cancelled, 1).Wait(ctx); err != nil {
			t.Errorf("load should complete despite cancellation, got %v", err)
		}
	})
}

func TestRead(t *testing.T) {
	loader := testutil.NewLoader()
	c := newItemCache(t, loader)

	loader.Hold()
	if r := c.Read(5); r.State != future.Pending || r.Loading == nil {
		t.Errorf("expected pending read, got %s", r.State)
	}
	loader.Release()
	wait(t, c)

	if r := c.Read(5); r.State != future.Success || r.Value.ID != 5 {
		t.Errorf("expected success, got %s (%+v)", r.State, r.Value)
	}

	loader.Fail(6, errors.New("down"))
	c.Read(6)
	wait(t, c)
	r := c.Read(6)
	if r.State != future.Failure || r.Err == nil {
		t.Errorf("expected failure, got %s", r.State)
	}
	wait(t, c)
	if loader.Calls(6) != 1 {
		t.Errorf("read after failure should not retry, got %d loads", loader.Calls(6))
	}
}

func TestRemovalDropsFreshness(t *testing.T) {
	loader := testutil.NewLoader()
	c := newItemCache(t, loader)

	c.GetMany([]int{1, 2})
	wait(t, c)

	c.RemoveOneByID(1)
	if !c.IsStale(1) {
		t.Error("removed id should load again on next read")
	}
	c.Clear()
	if !c.IsStale(2) {
		t.Error("cleared id should load again on next read")
	}
}

// countingSearch returns a search loader that resolves to ids and counts
// its calls
func countingSearch[P any](ids []int, calls *atomic.Int32) types.SearchLoadFunc[P, int] {
	return func(context.Context, P) ([]int, error) {
		calls.Add(1)
		return ids, nil
	}
}

func TestSearchDeterminism(t *testing.T) {
	var calls atomic.Int32
	c, err := New(Props[testutil.Item, int, map[string]any]{
		Props:      entity.Props[testutil.Item, int, map[string]any]{SelectID: testutil.ItemID},
		Load:       testutil.NewLoader().Load,
		SearchLoad: countingSearch[map[string]any]([]int{1, 2}, &calls),
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	c.Search(map[string]any{"key1": 1, "key2": "test", "key3": "value"})
	c.Search(map[string]any{"key3": "value", "key1": 1, "key2": "test"})
	wait(t, c)

	if calls.Load() != 1 {
		t.Errorf("expected one search load, got %d", calls.Load())
	}
	got := c.Search(map[string]any{"key2": "test", "key3": "value", "key1": 1})
	testutil.AssertIDsInOrder(t, got, 1, 2)
	if calls.Load() != 1 {
		t.Errorf("fresh search should not reload, got %d", calls.Load())
	}
}

func TestSortOnSearch(t *testing.T) {
	c, err := New(Props[testutil.Item, int, []int]{
		Props: entity.Props[testutil.Item, int, []int]{
			SelectID: testutil.ItemID,
			Sort:     func(a, b testutil.Item) int { return cmp.Compare(a.ID, b.ID) },
		},
		Load: testutil.NewLoader().Load,
		SearchLoad: func(_ context.Context, ids []int) ([]int, error) {
			return ids, nil
		},
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	param := []int{1, 2, 5, 4, 3}
	c.Search(param)
	wait(t, c)

	testutil.AssertIDsInOrder(t, c.Search(param), 1, 2, 3, 4, 5)
	testutil.AssertIDs(t, c.SearchIDs(param), 1, 2, 3, 4, 5)
}

func TestSearchLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("failed ids do not abort the batch", func(t *testing.T) {
		loader := testutil.NewLoader()
		loader.Fail(2, errors.New("down"))
		var calls atomic.Int32
		c, err := New(Props[testutil.Item, int, string]{
			Props:      entity.Props[testutil.Item, int, string]{SelectID: testutil.ItemID},
			Load:       loader.Load,
			SearchLoad: countingSearch[string]([]int{3, 2, 1}, &calls),
		})
		if err != nil {
			t.Fatalf("failed to create cache: %v", err)
		}

		ids, err := c.LoadSearched(ctx, "q").Wait(ctx)
		if err != nil {
			t.Fatalf("search should succeed, got %v", err)
		}
		testutil.AssertIDs(t, ids, 1, 3, 2)
		testutil.AssertIDsInOrder(t, c.Search("q"), 1, 3)
	})

	t.Run("mutations make the result stale", func(t *testing.T) {
		var calls atomic.Int32
		c, err := New(Props[testutil.Item, int, string]{
			Props:      entity.Props[testutil.Item, int, string]{SelectID: testutil.ItemID},
			Load:       testutil.NewLoader().Load,
			SearchLoad: countingSearch[string]([]int{1}, &calls),
		})
		if err != nil {
			t.Fatalf("failed to create cache: %v", err)
		}

		c.Search("q")
		wait(t, c)
		c.Search("q")
		if calls.Load() != 1 {
			t.Fatalf("expected one search load, got %d", calls.Load())
		}

		c.SetOne(testutil.NewItem(9))
		c.Search("q")
		wait(t, c)
		if calls.Load() != 2 {
			t.Errorf("mutation should force a new search load, got %d", calls.Load())
		}
	})

	t.Run("search loader error", func(t *testing.T) {
		boom := errors.New("boom")
		c, err := New(Props[testutil.Item, int, string]{
			Props: entity.Props[testutil.Item, int, string]{SelectID: testutil.ItemID},
			Load:  testutil.NewLoader().Load,
			SearchLoad: func(context.Context, string) ([]int, error) {
				return nil, boom
			},
		})
		if err != nil {
			t.Fatalf("failed to create cache: %v", err)
		}

		if _, err := c.LoadSearched(ctx, "q").Wait(ctx); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
		if c.IsSearchLoading("q") {
			t.Error("search should not stay in flight")
		}
	})

	t.Run("no search loader", func(t *testing.T) {
		c := newItemCache(t, testutil.NewLoader())
		if _, err := c.LoadSearched(ctx, "q").Wait(ctx); !errors.Is(err, types.ErrNoLoader) {
			t.Errorf("expected ErrNoLoader, got %v", err)
		}
		testutil.AssertItemCount(t, c.Search("q"), 0)
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New(Props[testutil.Item, int, string]{
		Props: entity.Props[testutil.Item, int, string]{SelectID: testutil.ItemID},
	})
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("missing loader: expected ErrInvalidArgument, got %v", err)
	}

	_, err = New(Props[testutil.Item, int, string]{
		Props: entity.Props[testutil.Item, int, string]{SelectID: testutil.ItemID},
		Load:  testutil.NewLoader().Load,
	}, option.WithTTL(-time.Second))
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("negative TTL: expected ErrInvalidArgument, got %v", err)
	}
}

type spyRecorder struct {
	started, finished, hits, misses atomic.Int32
}

func (s *spyRecorder) LoadStarted(metrics.Kind) { s.started.Add(1) }
func (s *spyRecorder) LoadFinished(metrics.Kind, metrics.Outcome, time.Duration) {
	s.finished.Add(1)
}
func (s *spyRecorder) Read(_ metrics.Kind, hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

func TestMetrics(t *testing.T) {
	spy := &spyRecorder{}
	c := newItemCache(t, testutil.NewLoader(), option.WithMetrics(spy))

	c.GetOne(1)
	wait(t, c)
	c.GetOne(1)

	if spy.started.Load() != 1 || spy.finished.Load() != 1 {
		t.Errorf("expected one load recorded, got %d/%d", spy.started.Load(), spy.finished.Load())
	}
	if spy.misses.Load() != 1 || spy.hits.Load() != 1 {
		t.Errorf("expected one miss and one hit, got %d/%d", spy.misses.Load(), spy.hits.Load())
	}
}
