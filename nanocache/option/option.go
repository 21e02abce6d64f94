// Package option holds the settings shared by every cache layer. Settings
// that depend on the entity type (selector, sort, search and loader
// functions) live in each layer's Props instead.
package option

import (
	"log/slog"
	"time"

	"github.com/arthur-debert/nanocache/nanocache/metrics"
	"github.com/arthur-debert/nanocache/nanocache/notify"
	"github.com/arthur-debert/nanocache/types"
	"golang.org/x/text/language"
)

// Option modifies Settings
type Option func(*Settings)

// Settings is the resolved configuration of a cache
type Settings struct {
	TTL             time.Duration
	SearchTTL       time.Duration
	SearchCacheSize int
	Collation       *language.Tag
	Clock           types.Clock
	Logger          *slog.Logger
	Hub             *notify.Hub
	Metrics         metrics.Recorder
}

// Apply resolves opts on top of the defaults
func Apply(opts ...Option) Settings {
	s := Settings{
		TTL: types.DefaultTTL,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.SearchTTL == 0 {
		s.SearchTTL = s.TTL
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Hub == nil {
		s.Hub = notify.NewHub()
	}
	if s.Metrics == nil {
		s.Metrics = metrics.Noop{}
	}
	return s
}

// WithTTL sets how long a loaded entity stays fresh
func WithTTL(ttl time.Duration) Option {
	return func(s *Settings) {
		s.TTL = ttl
	}
}

// WithSearchTTL sets how long a loaded search result stays fresh.
// It defaults to the entity TTL.
func WithSearchTTL(ttl time.Duration) Option {
	return func(s *Settings) {
		s.SearchTTL = ttl
	}
}

// WithSearchCacheSize bounds the number of cached search results.
// Zero keeps every result until the next mutation.
func WithSearchCacheSize(n int) Option {
	return func(s *Settings) {
		s.SearchCacheSize = n
	}
}

// WithCollation orders string ids with the collation rules of tag instead of
// byte order
func WithCollation(tag language.Tag) Option {
	return func(s *Settings) {
		s.Collation = &tag
	}
}

// WithClock sets a custom time function for testing
func WithClock(clock types.Clock) Option {
	return func(s *Settings) {
		s.Clock = clock
	}
}

// WithLogger sets the logger used for load diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(s *Settings) {
		s.Logger = logger
	}
}

// WithHub shares a notification hub between caches
func WithHub(hub *notify.Hub) Option {
	return func(s *Settings) {
		s.Hub = hub
	}
}

// WithMetrics sets the recorder for load and read activity
func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *Settings) {
		s.Metrics = recorder
	}
}

// FromConfig turns a loaded configuration into options
func FromConfig(cfg types.Config) []Option {
	return []Option{
		WithTTL(cfg.TTL),
		WithSearchTTL(cfg.EffectiveSearchTTL()),
		WithSearchCacheSize(cfg.SearchCacheSize),
	}
}
