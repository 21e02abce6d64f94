package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/arthur-debert/nanocache/formats"
	"github.com/arthur-debert/nanocache/internal/validation"
	"github.com/arthur-debert/nanocache/search"
	"github.com/arthur-debert/nanocache/types"
)

// Record is one entity read from a source file
type Record = map[string]any

// Source serves records from a JSON or YAML file as if it were a remote
// backend: every call waits for the configured latency and hands out
// copies.
type Source struct {
	path    string
	idField string
	latency time.Duration

	records map[string]Record
	ids     []string // sorted
	matcher *search.Matcher[Record]
}

// OpenSource reads the array of records stored at path. The format
// follows the file extension.
func OpenSource(path, idField string, latency time.Duration) (*Source, error) {
	format, err := formats.ByExtension(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	records, err := formats.For[Record](format).Decode(data)
	if err != nil {
		return nil, err
	}

	s := &Source{
		path:    path,
		idField: idField,
		latency: latency,
		records: make(map[string]Record, len(records)),
		matcher: search.NewMatcher[Record](search.MapFields),
	}
	for i, r := range records {
		if err := validation.ValidateID(r[idField], idField); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		id := s.ID(r)
		if _, dup := s.records[id]; dup {
			return nil, fmt.Errorf("%w: record %d repeats id %q", types.ErrInvalidArgument, i, id)
		}
		s.records[id] = r
		s.ids = append(s.ids, id)
	}
	slices.Sort(s.ids)
	return s, nil
}

// ID returns the record's id as a string
func (s *Source) ID(r Record) string {
	return fmt.Sprint(r[s.idField])
}

// Len returns the number of records in the source
func (s *Source) Len() int {
	return len(s.ids)
}

func (s *Source) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(s.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load fetches one record
func (s *Source) Load(ctx context.Context, id string) (Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %q: %w", id, types.ErrNotFound)
	}
	return maps.Clone(r), nil
}

// All returns every record in id order
func (s *Source) All(ctx context.Context) ([]Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, maps.Clone(s.records[id]))
	}
	return out, nil
}

// SearchLoad returns the ids of the matching records, best match first
func (s *Source) SearchLoad(ctx context.Context, opts search.Options) ([]string, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	results := s.matcher.Rank(opts, all)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = s.ID(r.Entity)
	}
	return ids, nil
}

// PageLoad serves records in id order. A request that carries the last
// loaded record continues right after its position; otherwise the offset
// is used.
func (s *Source) PageLoad(ctx context.Context, req types.PageRequest[string]) ([]Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	start := req.Offset
	if req.LastLoaded != nil {
		start = req.LastIndex + 1
	}
	if start >= len(s.ids) {
		return []Record{}, nil
	}

	end := min(start+req.Limit, len(s.ids))
	out := make([]Record, 0, end-start)
	for _, id := range s.ids[start:end] {
		out = append(out, maps.Clone(s.records[id]))
	}
	return out, nil
}
