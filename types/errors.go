package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a caller passes a value the cache
	// cannot work with (nil selector, negative TTL, page size below one...)
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedID is returned when ids are neither numbers nor strings
	// and no explicit sort function was configured
	ErrUnsupportedID = fmt.Errorf("%w: id type is not orderable, configure a sort function", ErrInvalidArgument)

	// ErrEmptyResult marks a load that succeeded without producing a value
	ErrEmptyResult = errors.New("loader returned an empty value")

	// ErrInvalidExpiry marks an expiry function that produced an unusable
	// timestamp. It is a configuration error and is never retried.
	ErrInvalidExpiry = errors.New("expiry function did not return a valid time")

	// ErrNoLoader is returned by load operations on a cache built without
	// the corresponding loader
	ErrNoLoader = errors.New("no loader configured")

	// ErrNotFound is returned when a key is absent from storage
	ErrNotFound = errors.New("not found")
)

// LoadError identifies the id whose load failed
type LoadError struct {
	ID  any
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load value for %v: %v", e.ID, e.Err)
}

// Unwrap returns the underlying cause for errors.Is and errors.As
func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError wraps err with the id that failed to load
func NewLoadError(id any, err error) *LoadError {
	return &LoadError{ID: id, Err: err}
}

// IsConfigurationError reports whether err stems from a misconfigured cache
// rather than from the backing source
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidExpiry) || errors.Is(err, ErrUnsupportedID)
}
