package types

import (
	"context"
	"time"
)

// SelectIDFunc extracts the identity of an entity.
// The returned id must be stable for the lifetime of the entity.
type SelectIDFunc[E any, ID comparable] func(entity E) ID

// SortFunc orders two entities. It returns a negative number when a sorts
// before b, a positive number when a sorts after b and zero otherwise.
type SortFunc[E any] func(a, b E) int

// SearchFunc reports whether an entity matches a search parameter
type SearchFunc[P, E any] func(param P, entity E) bool

// LoadFunc fetches a single entity from the backing source
type LoadFunc[E any, ID comparable] func(ctx context.Context, id ID) (E, error)

// SearchLoadFunc resolves a search parameter to the ids that match it
type SearchLoadFunc[P any, ID comparable] func(ctx context.Context, param P) ([]ID, error)

// PageRequest describes one page fetch.
// LastLoaded is nil when nothing has been materialized yet.
type PageRequest[ID comparable] struct {
	LastLoaded *ID
	LastIndex  int
	Limit      int
	Offset     int
}

// PageLoadFunc fetches one page of entities
type PageLoadFunc[E any, ID comparable] func(ctx context.Context, req PageRequest[ID]) ([]E, error)

// ExpiryFunc derives a "valid until" time from a freshly loaded entity.
// Returning false keeps the fixed TTL for that entity.
type ExpiryFunc[E any] func(entity E) (time.Time, bool)

// Clock returns the current time. Tests replace it to control staleness.
type Clock func() time.Time

// DefaultTTL is how long a loaded entity or search result stays fresh
const DefaultTTL = 300 * time.Second
