package types

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageBackend names a key-value storage implementation
type StorageBackend string

const (
	MemoryBackend StorageBackend = "memory"
	FileBackend   StorageBackend = "file"
	SQLiteBackend StorageBackend = "sqlite"
	BuntBackend   StorageBackend = "bunt"
)

// StorageConfig selects and locates the persistence backend
type StorageConfig struct {
	// Backend is one of memory, file, sqlite or bunt
	Backend StorageBackend `yaml:"backend" mapstructure:"backend"`

	// Path is a directory for the file backend and a database file for
	// sqlite and bunt. Bunt accepts ":memory:".
	Path string `yaml:"path" mapstructure:"path"`

	// Key is the storage key the persistent cache writes under
	Key string `yaml:"key" mapstructure:"key"`

	// LoadOnInit restores persisted entities when the cache is created
	LoadOnInit bool `yaml:"load_on_init" mapstructure:"load_on_init"`
}

// Config collects the tunables shared by the cache layers and the CLI
type Config struct {
	// TTL is how long a loaded entity stays fresh
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`

	// SearchTTL is how long a loaded search result stays fresh.
	// Zero means "same as TTL".
	SearchTTL time.Duration `yaml:"search_ttl" mapstructure:"search_ttl"`

	// SearchCacheSize bounds the number of cached search results.
	// Zero means unbounded.
	SearchCacheSize int `yaml:"search_cache_size" mapstructure:"search_cache_size"`

	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() Config {
	return Config{
		TTL:      DefaultTTL,
		LogLevel: "warn",
		Storage: StorageConfig{
			Backend: MemoryBackend,
			Key:     "default",
		},
	}
}

// EffectiveSearchTTL returns SearchTTL, falling back to TTL
func (c Config) EffectiveSearchTTL() time.Duration {
	if c.SearchTTL > 0 {
		return c.SearchTTL
	}
	return c.TTL
}

// ParseConfig decodes a YAML document on top of DefaultConfig
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
