package testutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// IDs returns the ids of items in order
func IDs(items []Item) []int {
	ids := make([]int, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// AssertItemCount checks that the slice contains the expected number of items
func AssertItemCount(t *testing.T, items []Item, expected int, context ...string) {
	t.Helper()
	if len(items) != expected {
		ctx := ""
		if len(context) > 0 {
			ctx = " " + context[0]
		}
		t.Errorf("expected %d items%s, got %d", expected, ctx, len(items))
	}
}

// AssertIDsInOrder checks that items have exactly the expected ids, in order
func AssertIDsInOrder(t *testing.T, items []Item, expected ...int) {
	t.Helper()
	if expected == nil {
		expected = []int{}
	}
	if diff := cmp.Diff(expected, IDs(items)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

// AssertIDs compares two id slices, in order
func AssertIDs(t *testing.T, got []int, expected ...int) {
	t.Helper()
	if got == nil {
		got = []int{}
	}
	if expected == nil {
		expected = []int{}
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

// AssertItemExists verifies that an item with the given id is in the slice
func AssertItemExists(t *testing.T, items []Item, id int) {
	t.Helper()
	for _, item := range items {
		if item.ID == id {
			return
		}
	}
	t.Errorf("item %d not found in results", id)
}

// AssertItemNotExists verifies that no item with the given id is in the slice
func AssertItemNotExists(t *testing.T, items []Item, id int) {
	t.Helper()
	for _, item := range items {
		if item.ID == id {
			t.Errorf("item %d should not be in results", id)
			return
		}
	}
}
