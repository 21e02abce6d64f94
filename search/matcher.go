package search

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Matcher matches entities against Options
type Matcher[E any] struct {
	fields FieldsFunc[E]
}

// NewMatcher creates a matcher reading entity fields through fields
func NewMatcher[E any](fields FieldsFunc[E]) *Matcher[E] {
	return &Matcher[E]{fields: fields}
}

// Match reports whether e matches opts. Its signature fits
// types.SearchFunc[Options, E].
func (m *Matcher[E]) Match(opts Options, e E) bool {
	_, ok := m.Score(opts, e)
	return ok
}

// Score returns the match details for e, or false when it does not match
func (m *Matcher[E]) Score(opts Options, e E) (Result[E], bool) {
	if opts.Query == "" {
		return Result[E]{}, false
	}

	values := m.fields(e)
	names := opts.Fields
	if len(names) == 0 {
		names = make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
	}

	query := opts.Query
	if !opts.CaseSensitive {
		query = strings.ToLower(query)
	}

	result := Result[E]{Entity: e}
	for _, name := range names {
		value, exists := values[name]
		if !exists {
			continue // Field not found
		}
		text := value
		if !opts.CaseSensitive {
			text = strings.ToLower(text)
		}

		score, matchType, ok := scoreField(text, query, opts.ExactMatch)
		if !ok {
			continue
		}
		result.MatchedFields = append(result.MatchedFields, name)
		if score > result.Score {
			result.Score = score
			result.MatchType = matchType
		}
	}

	if len(result.MatchedFields) == 0 {
		return Result[E]{}, false
	}
	slices.Sort(result.MatchedFields)
	return result, true
}

// Rank returns the entities matching opts, best score first. Ties keep the
// input order.
func (m *Matcher[E]) Rank(opts Options, entities []E) []Result[E] {
	var results []Result[E]
	for _, e := range entities {
		if r, ok := m.Score(opts, e); ok {
			results = append(results, r)
		}
	}

	// Sort by score (highest first)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// scoreField computes a relevance score for one field. text and query are
// already case-folded as requested.
func scoreField(text, query string, exact bool) (float64, MatchType, bool) {
	if exact {
		if text == query {
			return 1.0, MatchExact, true
		}
		return 0, "", false
	}

	if !strings.Contains(text, query) {
		return 0, "", false
	}
	if text == query {
		return 1.0, MatchExact, true
	}

	score, matchType := 0.7, MatchPartial

	// Boost if match is at the beginning
	if strings.HasPrefix(text, query) {
		score += 0.2
		matchType = MatchPrefix
	}

	// Boost if query takes up a large portion of the field
	if coverage := float64(len(query)) / float64(len(text)); coverage > 0.5 {
		score += 0.1
	}

	return min(score, 1.0), matchType, true
}

// MapFields exposes a generic record as searchable fields. Values are
// formatted with fmt; nested values are skipped.
func MapFields(record map[string]any) map[string]string {
	fields := make(map[string]string, len(record))
	for k, v := range record {
		switch v.(type) {
		case map[string]any, []any, nil:
			continue
		default:
			fields[k] = fmt.Sprint(v)
		}
	}
	return fields
}

// Highlight wraps every occurrence of query in text with the markers
func Highlight(text, query string, caseSensitive bool, startMarker, endMarker string) string {
	if query == "" {
		return text
	}

	searchText := text
	searchQuery := query
	if !caseSensitive {
		searchText = strings.ToLower(text)
		searchQuery = strings.ToLower(query)
	}
	if len(searchText) != len(text) {
		// case folding changed byte offsets, positions would not line up
		return text
	}

	queryLen := len(searchQuery)
	var (
		builder strings.Builder
		lastEnd int
	)
	for i := 0; i <= len(searchText)-queryLen; i++ {
		if searchText[i:i+queryLen] != searchQuery {
			continue
		}
		builder.WriteString(text[lastEnd:i])
		builder.WriteString(startMarker)
		builder.WriteString(text[i : i+queryLen])
		builder.WriteString(endMarker)
		lastEnd = i + queryLen
		i += queryLen - 1 // Skip overlapping matches
	}
	builder.WriteString(text[lastEnd:])
	return builder.String()
}
