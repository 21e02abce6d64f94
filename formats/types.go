// Package formats holds the wire formats used to persist and print entity
// lists. A Format is untyped; Codec binds one to an entity type, optionally
// through a wire type that stands in for the entity on disk.
package formats

import (
	"fmt"
	"slices"
	"strings"
)

// Format defines how values are serialized and deserialized
type Format struct {
	// Name is the format identifier (alphanumeric, dashes, underscores, lowercase)
	Name string

	// Extension is the file extension including the dot (e.g., ".json")
	Extension string

	// Marshal encodes v
	Marshal func(v any) ([]byte, error)

	// Unmarshal decodes data into the value v points to
	Unmarshal func(data []byte, v any) error
}

// registry holds all available formats
var registry = make(map[string]*Format)

func init() {
	for _, f := range []*Format{JSON, YAML} {
		if err := Register(f); err != nil {
			panic(err)
		}
	}
}

// Register adds a new format to the registry
func Register(format *Format) error {
	// Validate format name (alphanumeric, dashes, underscores, lowercase)
	if !isValidFormatName(format.Name) {
		return fmt.Errorf("invalid format name %q: must be lowercase alphanumeric with dashes and underscores only", format.Name)
	}
	if format.Marshal == nil || format.Unmarshal == nil {
		return fmt.Errorf("format %q needs both Marshal and Unmarshal", format.Name)
	}

	// Normalize extension
	if !strings.HasPrefix(format.Extension, ".") {
		format.Extension = "." + format.Extension
	}

	if _, exists := registry[format.Name]; exists {
		return fmt.Errorf("format %q already registered", format.Name)
	}

	registry[format.Name] = format
	return nil
}

// Get returns a format by name
func Get(name string) (*Format, error) {
	format, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown format %q (available: %s)", name, strings.Join(List(), ", "))
	}
	return format, nil
}

// ByExtension returns the format registered for a file extension
func ByExtension(ext string) (*Format, error) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ext == ".yml" {
		ext = YAML.Extension
	}
	for _, name := range List() {
		if f := registry[name]; f.Extension == ext {
			return f, nil
		}
	}
	return nil, fmt.Errorf("no format for extension %q", ext)
}

// List returns all registered format names, sorted
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// isValidFormatName checks if a format name is valid
func isValidFormatName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
