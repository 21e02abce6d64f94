// Package nanocache provides client-side entity caches that sit between an
// application and a slow or remote source.
//
// The caches are layered. EntityCache keeps entities by id in sort order and
// caches search results. DynamicCache loads missing or stale entities in the
// background and never blocks a read. PaginationCache adds page-by-page
// loading. Selection tracks one selected entity over any of them, and
// Persistent saves and restores a cache's content through a key-value
// storage.
package nanocache

import (
	"context"
	"fmt"

	"github.com/arthur-debert/nanocache/internal/validation"
	"github.com/arthur-debert/nanocache/nanocache/dynamic"
	"github.com/arthur-debert/nanocache/nanocache/entity"
	"github.com/arthur-debert/nanocache/nanocache/option"
	"github.com/arthur-debert/nanocache/nanocache/pagination"
	"github.com/arthur-debert/nanocache/nanocache/persistent"
	"github.com/arthur-debert/nanocache/nanocache/selection"
	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
)

// EntityCache is an alias for entity.Cache
type EntityCache[E any, ID comparable, P any] = entity.Cache[E, ID, P]

// EntityProps is an alias for entity.Props
type EntityProps[E any, ID comparable, P any] = entity.Props[E, ID, P]

// DynamicCache is an alias for dynamic.Cache
type DynamicCache[E any, ID comparable, P any] = dynamic.Cache[E, ID, P]

// DynamicProps is an alias for dynamic.Props
type DynamicProps[E any, ID comparable, P any] = dynamic.Props[E, ID, P]

// PaginationCache is an alias for pagination.Cache
type PaginationCache[E any, ID comparable, P any] = pagination.Cache[E, ID, P]

// PaginationProps is an alias for pagination.Props
type PaginationProps[E any, ID comparable, P any] = pagination.Props[E, ID, P]

// Selection is an alias for selection.Overlay
type Selection[E any, ID comparable] = selection.Overlay[E, ID]

// Persistent is an alias for persistent.Cache
type Persistent[E any, ID comparable] = persistent.Cache[E, ID]

// PersistentProps is an alias for persistent.Props
type PersistentProps[E any, ID comparable] = persistent.Props[E, ID]

// PersistentSource is an alias for persistent.Source
type PersistentSource[E any, ID comparable] = persistent.Source[E, ID]

// Option is an alias for option.Option
type Option = option.Option

// Options re-exported from the option package
var (
	WithTTL             = option.WithTTL
	WithSearchTTL       = option.WithSearchTTL
	WithSearchCacheSize = option.WithSearchCacheSize
	WithCollation       = option.WithCollation
	WithClock           = option.WithClock
	WithLogger          = option.WithLogger
	WithHub             = option.WithHub
	WithMetrics         = option.WithMetrics
)

// Config is an alias for types.Config
type Config = types.Config

// NewEntityCache creates an entity cache
func NewEntityCache[E any, ID comparable, P any](props EntityProps[E, ID, P], opts ...Option) (*EntityCache[E, ID, P], error) {
	return entity.New(props, opts...)
}

// NewDynamicCache creates a dynamic loading cache
func NewDynamicCache[E any, ID comparable, P any](props DynamicProps[E, ID, P], opts ...Option) (*DynamicCache[E, ID, P], error) {
	return dynamic.New(props, opts...)
}

// NewPaginationCache creates a pagination cache
func NewPaginationCache[E any, ID comparable, P any](props PaginationProps[E, ID, P], opts ...Option) (*PaginationCache[E, ID, P], error) {
	return pagination.New(props, opts...)
}

// NewSelection tracks a selected entity of source
func NewSelection[E any, ID comparable](source selection.Source[E, ID]) *Selection[E, ID] {
	return selection.New(source)
}

// NewPersistent persists a cache's content
func NewPersistent[E any, ID comparable](ctx context.Context, props PersistentProps[E, ID], opts ...Option) (*Persistent[E, ID], error) {
	return persistent.New(ctx, props, opts...)
}

// Options validates cfg and turns it into cache options
func Options(cfg Config) ([]Option, error) {
	if err := validation.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return option.FromConfig(cfg), nil
}

// OpenStorage validates the storage section of cfg and opens the backend
func OpenStorage(cfg Config) (storage.KV, error) {
	if err := validation.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return storage.Open(cfg.Storage)
}
