// Package validation checks configuration and record values before they
// reach the caches.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/arthur-debert/nanocache/types"
)

// LogLevels lists the accepted log levels
var LogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration for consistency
func Validate(cfg types.Config) error {
	if cfg.TTL < 0 {
		return invalid("ttl cannot be negative, got %s", cfg.TTL)
	}
	if cfg.SearchTTL < 0 {
		return invalid("search_ttl cannot be negative, got %s", cfg.SearchTTL)
	}
	if cfg.SearchCacheSize < 0 {
		return invalid("search_cache_size cannot be negative, got %d", cfg.SearchCacheSize)
	}

	if cfg.LogLevel != "" && !isLogLevel(cfg.LogLevel) {
		return invalid("log_level %q is not one of %s", cfg.LogLevel, strings.Join(LogLevels, ", "))
	}

	return validateStorage(cfg.Storage)
}

func validateStorage(s types.StorageConfig) error {
	switch s.Backend {
	case types.MemoryBackend, "":
	case types.FileBackend, types.SQLiteBackend:
		if s.Path == "" {
			return invalid("storage backend %s needs a path", s.Backend)
		}
	case types.BuntBackend:
		// an empty path means in-memory
	default:
		return invalid("unknown storage backend %q", s.Backend)
	}

	if err := ValidateKey(s.Key); err != nil {
		return err
	}
	return nil
}

// ValidateKey checks a storage key. Keys must be non-empty and free of
// whitespace and control characters.
func ValidateKey(key string) error {
	if key == "" {
		return invalid("storage key cannot be empty")
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return invalid("storage key %q contains whitespace or control characters", key)
		}
	}
	return nil
}

// ValidateID ensures a record's id value is a simple type (string, number,
// bool or time) that can be turned into a stable key
func ValidateID(value any, field string) error {
	if value == nil {
		return invalid("id field '%s' is missing", field)
	}

	// Check the type using reflection
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String:
		if v.String() == "" {
			return invalid("id field '%s' is empty", field)
		}
		return nil
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Slice, reflect.Array:
		return invalid("id field '%s' cannot be an array/slice type, got %T", field, value)
	case reflect.Map:
		return invalid("id field '%s' cannot be a map type, got %T", field, value)
	case reflect.Ptr:
		// Dereference the pointer and check again
		if v.IsNil() {
			return invalid("id field '%s' is missing", field)
		}
		return ValidateID(v.Elem().Interface(), field)
	case reflect.Struct:
		// Allow time.Time as it's commonly used
		if _, ok := value.(time.Time); ok {
			return nil
		}
		return invalid("id field '%s' cannot be a struct type, got %T", field, value)
	default:
		return invalid("id field '%s' must be a simple type (string, number, or bool), got %T", field, value)
	}
}

func isLogLevel(level string) bool {
	for _, l := range LogLevels {
		if strings.EqualFold(level, l) {
			return true
		}
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrInvalidArgument, fmt.Sprintf(format, args...))
}
