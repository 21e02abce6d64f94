// Package search matches entities against free-text queries. A Matcher
// reads the searchable fields of an entity through a FieldsFunc, so it can
// serve as the search function of any cache whose search parameter is
// Options.
package search

// Options configures search behavior. It is comparable by canonical key,
// so caches can use it directly as their search parameter.
type Options struct {
	// Query is the search term to look for. An empty query matches nothing.
	Query string `json:"query"`

	// Fields specifies which fields to search in.
	// Empty slice searches all fields
	Fields []string `json:"fields,omitempty"`

	// CaseSensitive controls whether search is case-sensitive
	CaseSensitive bool `json:"case_sensitive,omitempty"`

	// ExactMatch requires the entire field to match the query
	// When false, performs partial/substring matching
	ExactMatch bool `json:"exact_match,omitempty"`
}

// MatchType indicates the type of match found
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPrefix  MatchType = "prefix"
	MatchPartial MatchType = "partial"
)

// Result represents a search match with metadata
type Result[E any] struct {
	Entity E

	// Score represents match relevance (0.0 to 1.0, higher is better)
	Score float64

	// MatchType describes the best match found
	MatchType MatchType

	// MatchedFields lists all fields that contained matches, sorted
	MatchedFields []string
}

// FieldsFunc returns the searchable text of an entity by field name
type FieldsFunc[E any] func(e E) map[string]string
