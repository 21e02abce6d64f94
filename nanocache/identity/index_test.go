package identity

import (
	"cmp"
	"errors"
	"testing"

	"github.com/arthur-debert/nanocache/nanocache/option"
	"github.com/arthur-debert/nanocache/testutil"
	"github.com/arthur-debert/nanocache/types"
	gocmp "github.com/google/go-cmp/cmp"
	"golang.org/x/text/language"
)

func newItemIndex(t *testing.T) *Index[testutil.Item, int] {
	t.Helper()
	x, err := New[testutil.Item, int](testutil.ItemID, nil)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	return x
}

func TestGetAllOrdering(t *testing.T) {
	t.Run("numeric ids ascending regardless of insertion order", func(t *testing.T) {
		x := newItemIndex(t)
		for _, id := range []int{5, 3, 9, 1, 7, 2} {
			x.Add(testutil.NewItem(id))
		}
		testutil.AssertIDsInOrder(t, x.GetAll(), 1, 2, 3, 5, 7, 9)
	})

	t.Run("string ids lexicographic", func(t *testing.T) {
		type doc struct{ Key string }
		x, err := New[doc, string](func(d doc) string { return d.Key }, nil)
		if err != nil {
			t.Fatalf("failed to create index: %v", err)
		}
		x.AddAll([]doc{{"b"}, {"c"}, {"a"}, {"B"}})

		var got []string
		for _, d := range x.GetAll() {
			got = append(got, d.Key)
		}
		if diff := gocmp.Diff([]string{"B", "a", "b", "c"}, got); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("collation orders case-insensitively first", func(t *testing.T) {
		type doc struct{ Key string }
		x, err := New[doc, string](func(d doc) string { return d.Key }, nil, option.WithCollation(language.English))
		if err != nil {
			t.Fatalf("failed to create index: %v", err)
		}
		x.AddAll([]doc{{"c"}, {"B"}, {"a"}})

		var got []string
		for _, d := range x.GetAll() {
			got = append(got, d.Key)
		}
		if diff := gocmp.Diff([]string{"a", "B", "c"}, got); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("float ids", func(t *testing.T) {
		x, err := New[float64, float64](func(f float64) float64 { return f }, nil)
		if err != nil {
			t.Fatalf("failed to create index: %v", err)
		}
		x.AddAll([]float64{2.5, -1, 0.25})
		if diff := gocmp.Diff([]float64{-1, 0.25, 2.5}, x.GetAll()); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("explicit sort function", func(t *testing.T) {
		desc := func(a, b testutil.Item) int { return cmp.Compare(b.ID, a.ID) }
		x, err := New[testutil.Item, int](testutil.ItemID, desc)
		if err != nil {
			t.Fatalf("failed to create index: %v", err)
		}
		x.AddAll(testutil.Items(1, 3, 2))
		testutil.AssertIDsInOrder(t, x.GetAll(), 3, 2, 1)
	})
}

func TestNewValidation(t *testing.T) {
	type compound struct{ A, B int }
	selectCompound := func(c compound) compound { return c }

	t.Run("unorderable id without sort function", func(t *testing.T) {
		_, err := New[compound, compound](selectCompound, nil)
		if !errors.Is(err, types.ErrUnsupportedID) {
			t.Fatalf("expected ErrUnsupportedID, got %v", err)
		}
		if !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("unsupported id should be an invalid argument, got %v", err)
		}
	})

	t.Run("interface id without sort function", func(t *testing.T) {
		_, err := New[any, any](func(v any) any { return v }, nil)
		if !errors.Is(err, types.ErrUnsupportedID) {
			t.Fatalf("expected ErrUnsupportedID, got %v", err)
		}
	})

	t.Run("unorderable id with sort function", func(t *testing.T) {
		byA := func(x, y compound) int { return cmp.Compare(x.A, y.A) }
		x, err := New[compound, compound](selectCompound, byA)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		x.AddAll([]compound{{A: 2}, {A: 1}})
		if got := x.GetAll(); got[0].A != 1 {
			t.Errorf("expected sort by A, got %+v", got)
		}
	})

	t.Run("nil selector", func(t *testing.T) {
		_, err := New[testutil.Item, int](nil, nil)
		if !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestAddAndGet(t *testing.T) {
	x := newItemIndex(t)

	if id := x.Add(testutil.Item{ID: 1, Value: "first"}); id != 1 {
		t.Errorf("expected id 1, got %d", id)
	}
	x.Add(testutil.Item{ID: 1, Value: "second"})

	got, ok := x.Get(1)
	if !ok {
		t.Fatal("expected item 1")
	}
	if got.Value != "second" {
		t.Errorf("add should overwrite, got %q", got.Value)
	}
	if x.Len() != 1 {
		t.Errorf("expected 1 item, got %d", x.Len())
	}

	if _, ok := x.Get(2); ok {
		t.Error("expected miss for id 2")
	}
	if !x.Has(1) || x.Has(2) {
		t.Error("Has disagrees with Get")
	}

	t.Run("get many keeps input order and skips misses", func(t *testing.T) {
		x := newItemIndex(t)
		x.AddAll(testutil.Items(1, 2, 3))
		testutil.AssertIDsInOrder(t, x.GetMany([]int{3, 9, 1}), 3, 1)
	})

	t.Run("add all returns ids in input order", func(t *testing.T) {
		x := newItemIndex(t)
		testutil.AssertIDs(t, x.AddAll(testutil.Items(4, 2, 8)), 4, 2, 8)
	})

	t.Run("mapped copy is detached", func(t *testing.T) {
		x := newItemIndex(t)
		x.AddAll(testutil.Items(1, 2))
		m := x.GetAllMapped()
		delete(m, 1)
		if !x.Has(1) {
			t.Error("mutating the mapped copy changed the index")
		}
	})
}

func TestRemove(t *testing.T) {
	x := newItemIndex(t)
	x.AddAll(testutil.Items(1, 2, 3))

	if id, ok := x.RemoveOne(testutil.NewItem(2)); !ok || id != 2 {
		t.Errorf("expected to remove 2, got %d (%v)", id, ok)
	}
	if _, ok := x.RemoveOne(testutil.NewItem(2)); ok {
		t.Error("second removal should report not found")
	}

	removed, ok := x.RemoveOneByID(3)
	if !ok || removed.ID != 3 {
		t.Errorf("expected to remove 3, got %+v (%v)", removed, ok)
	}
	if _, ok := x.RemoveOneByID(42); ok {
		t.Error("removing an absent id should report not found")
	}

	testutil.AssertIDsInOrder(t, x.GetAll(), 1)
}

func TestReplaceAll(t *testing.T) {
	t.Run("returns ids present before and absent after", func(t *testing.T) {
		x := newItemIndex(t)
		x.AddAll(testutil.Items(8, 7, 6, 5, 4, 3, 2, 1))

		removed := x.ReplaceAll(testutil.Items(2, 4, 6, 8, 10))
		testutil.AssertIDs(t, removed, 1, 3, 5, 7)
		testutil.AssertIDsInOrder(t, x.GetAll(), 2, 4, 6, 8, 10)
	})

	t.Run("empty list clears and returns every prior id", func(t *testing.T) {
		x := newItemIndex(t)
		x.AddAll(testutil.Items(3, 1, 2))

		testutil.AssertIDs(t, x.ReplaceAll(nil), 1, 2, 3)
		if x.Len() != 0 {
			t.Errorf("expected empty index, got %d", x.Len())
		}
	})

	t.Run("replacing an empty index removes nothing", func(t *testing.T) {
		x := newItemIndex(t)
		testutil.AssertIDs(t, x.ReplaceAll(testutil.Items(1)))
	})

	t.Run("replaced entities take the new value", func(t *testing.T) {
		x := newItemIndex(t)
		x.Add(testutil.Item{ID: 1, Value: "old"})
		x.ReplaceAll([]testutil.Item{{ID: 1, Value: "new"}})
		if got, _ := x.Get(1); got.Value != "new" {
			t.Errorf("expected new, got %q", got.Value)
		}
	})
}

func TestClear(t *testing.T) {
	x := newItemIndex(t)
	x.AddAll(testutil.Items(2, 1))

	testutil.AssertIDs(t, x.Clear(), 1, 2)
	testutil.AssertIDs(t, x.Clear())
}
