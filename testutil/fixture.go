// Package testutil provides fixture entities, a controllable clock and a
// counting loader for cache tests.
package testutil

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"testing"
)

//go:embed testdata/items.json
var universeJSON []byte

// Item is the entity used throughout the cache tests
type Item struct {
	ID    int      `json:"id" yaml:"id"`
	Value string   `json:"value" yaml:"value"`
	Tags  []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// ItemID selects the id of an Item
func ItemID(i Item) int {
	return i.ID
}

// HasTag reports whether the item carries tag. It doubles as a search
// function with the tag as parameter.
func HasTag(tag string, i Item) bool {
	return slices.Contains(i.Tags, tag)
}

// NewItem returns an item whose value is derived from its id
func NewItem(id int) Item {
	return Item{ID: id, Value: fmt.Sprintf("item-%d", id)}
}

// Items returns NewItem for every id, in the given order
func Items(ids ...int) []Item {
	items := make([]Item, len(ids))
	for i, id := range ids {
		items[i] = NewItem(id)
	}
	return items
}

// Universe holds the fixture items with typed access to the ones tests
// refer to by name
type Universe struct {
	All []Item

	One   Item // id 1, odd and small
	Two   Item // id 2, even and small
	Seven Item // id 7, the only lucky item
	Ten   Item // id 10, the only round item

	ByID map[int]Item
}

// LoadUniverse parses the embedded fixture
func LoadUniverse(t *testing.T) *Universe {
	t.Helper()

	var items []Item
	if err := json.Unmarshal(universeJSON, &items); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	u := &Universe{All: items, ByID: make(map[int]Item, len(items))}
	for _, item := range items {
		u.ByID[item.ID] = item
	}
	u.One, u.Two, u.Seven, u.Ten = u.ByID[1], u.ByID[2], u.ByID[7], u.ByID[10]
	return u
}

// WithTag returns the fixture items carrying tag, in id order
func (u *Universe) WithTag(tag string) []Item {
	var result []Item
	for _, item := range u.All {
		if HasTag(tag, item) {
			result = append(result, item)
		}
	}
	return result
}
