// Package canonical turns arbitrary search parameters into deterministic
// string keys. Two parameters that are structurally equal produce the same
// key regardless of the order their fields or map entries were written in.
package canonical

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Keyer lets a parameter type provide its own canonical key
type Keyer interface {
	CanonicalKey() string
}

// Key returns the canonical key for param.
//
// Strings, numbers and booleans are encoded as JSON scalars. Maps are
// written with sorted keys, structs with their exported fields sorted by
// JSON name, slices element by element in order. Values that cannot be
// encoded that way (funcs, channels) fall back to their type and address,
// which is stable for the lifetime of the value only.
func Key(param any) string {
	if k, ok := param.(Keyer); ok {
		return k.CanonicalKey()
	}
	var b strings.Builder
	write(&b, reflect.ValueOf(param))
	return b.String()
}

func write(b *strings.Builder, v reflect.Value) {
	if !v.IsValid() {
		b.WriteString("null")
		return
	}

	if v.CanInterface() {
		if k, ok := v.Interface().(Keyer); ok {
			writeJSON(b, k.CanonicalKey())
			return
		}
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			b.WriteString("null")
			return
		}
		write(b, v.Elem())

	case reflect.Map:
		if v.IsNil() {
			b.WriteString("null")
			return
		}
		type entry struct {
			key string
			val reflect.Value
		}
		entries := make([]entry, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			entries = append(entries, entry{key: mapKey(iter.Key()), val: iter.Value()})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

		b.WriteByte('{')
		for i, e := range entries {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSON(b, e.key)
			b.WriteByte(':')
			write(b, e.val)
		}
		b.WriteByte('}')

	case reflect.Struct:
		type field struct {
			name string
			val  reflect.Value
		}
		t := v.Type()
		fields := make([]field, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name := sf.Name
			if tag, ok := sf.Tag.Lookup("json"); ok {
				tagName, _, _ := strings.Cut(tag, ",")
				if tagName == "-" {
					continue
				}
				if tagName != "" {
					name = tagName
				}
			}
			fields = append(fields, field{name: name, val: v.Field(i)})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })

		b.WriteByte('{')
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSON(b, f.name)
			b.WriteByte(':')
			write(b, f.val)
		}
		b.WriteByte('}')

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			b.WriteString("null")
			return
		}
		b.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			write(b, v.Index(i))
		}
		b.WriteByte(']')

	case reflect.String:
		writeJSON(b, v.String())

	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		fmt.Fprintf(b, "%v", v.Interface())

	default:
		fmt.Fprintf(b, "%q", fmt.Sprintf("%s@%p", v.Type(), v.Interface()))
	}
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprintf("%v", k.Interface())
}

func writeJSON(b *strings.Builder, s string) {
	data, _ := json.Marshal(s)
	b.Write(data)
}
