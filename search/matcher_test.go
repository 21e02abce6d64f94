package search

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/nanocache/nanocache/entity"
	"github.com/arthur-debert/nanocache/testutil"
)

func itemFields(i testutil.Item) map[string]string {
	return map[string]string{
		"value": i.Value,
		"tags":  strings.Join(i.Tags, " "),
	}
}

func matchingIDs(m *Matcher[testutil.Item], opts Options, items []testutil.Item) []int {
	var ids []int
	for _, item := range items {
		if m.Match(opts, item) {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

func TestMatch(t *testing.T) {
	u := testutil.LoadUniverse(t)
	m := NewMatcher(itemFields)

	tests := []struct {
		name string
		opts Options
		want []int
	}{
		{"substring", Options{Query: "e", Fields: []string{"value"}}, []int{1, 3, 5, 7, 8, 9, 10}},
		{"all fields", Options{Query: "lucky"}, []int{7}},
		{"restricted fields", Options{Query: "odd", Fields: []string{"value"}}, nil},
		{"unknown field", Options{Query: "one", Fields: []string{"missing"}}, nil},
		{"case insensitive", Options{Query: "SEVEN"}, []int{7}},
		{"case sensitive", Options{Query: "SEVEN", CaseSensitive: true}, nil},
		{"exact", Options{Query: "t", ExactMatch: true}, nil},
		{"exact whole value", Options{Query: "Ten", ExactMatch: true}, []int{10}},
		{"empty query", Options{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchingIDs(m, tt.opts, u.All)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScore(t *testing.T) {
	u := testutil.LoadUniverse(t)
	m := NewMatcher(itemFields)

	r, ok := m.Score(Options{Query: "one"}, u.One)
	if !ok {
		t.Fatal("expected a match")
	}
	if r.Score != 1.0 || r.MatchType != MatchExact {
		t.Errorf("whole-field match should be exact, got %v %s", r.Score, r.MatchType)
	}

	r, ok = m.Score(Options{Query: "s"}, testutil.Item{ID: 6, Value: "six", Tags: []string{"small"}})
	if !ok {
		t.Fatal("expected a match")
	}
	if diff := cmp.Diff([]string{"tags", "value"}, r.MatchedFields); diff != "" {
		t.Errorf("matched fields mismatch (-want +got):\n%s", diff)
	}
	if r.MatchType != MatchPrefix {
		t.Errorf("expected prefix match, got %s", r.MatchType)
	}
}

func TestRank(t *testing.T) {
	u := testutil.LoadUniverse(t)
	m := NewMatcher(itemFields)

	results := m.Rank(Options{Query: "t", Fields: []string{"value"}}, u.All)
	ids := make([]int, len(results))
	for i, r := range results {
		ids[i] = r.Entity.ID
	}
	// prefix matches first, in input order, then the inner match
	if diff := cmp.Diff([]int{2, 3, 10, 8}, ids); diff != "" {
		t.Errorf("rank mismatch (-want +got):\n%s", diff)
	}
}

func TestAsCacheSearch(t *testing.T) {
	u := testutil.LoadUniverse(t)
	m := NewMatcher(itemFields)

	cache, err := entity.New(entity.Props[testutil.Item, int, Options]{
		SelectID: testutil.ItemID,
		Search:   m.Match,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	cache.SetAll(u.All)

	testutil.AssertIDsInOrder(t, cache.Search(Options{Query: "e", Fields: []string{"value"}}), 1, 3, 5, 7, 8, 9, 10)
	testutil.AssertIDsInOrder(t, cache.Search(Options{Query: "even", Fields: []string{"tags"}}), 2, 4, 6, 8, 10)
	if cache.SearchCacheLen() != 2 {
		t.Errorf("expected two cached results, got %d", cache.SearchCacheLen())
	}
}

func TestMapFields(t *testing.T) {
	got := MapFields(map[string]any{
		"id":     1,
		"name":   "x",
		"ok":     true,
		"nested": map[string]any{"a": 1},
		"list":   []any{1, 2},
		"empty":  nil,
	})
	want := map[string]string{"id": "1", "name": "x", "ok": "true"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		name          string
		text, query   string
		caseSensitive bool
		want          string
	}{
		{"single", "Important meeting", "meet", false, "Important **meet**ing"},
		{"several", "abcabc", "b", false, "a**b**ca**b**c"},
		{"case insensitive", "Meeting", "meet", false, "**Meet**ing"},
		{"case sensitive", "Meeting", "meet", true, "Meeting"},
		{"empty query", "text", "", false, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Highlight(tt.text, tt.query, tt.caseSensitive, "**", "**"); got != tt.want {
				t.Errorf("Highlight() = %q, want %q", got, tt.want)
			}
		})
	}
}
