package identity

import (
	"cmp"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/arthur-debert/nanocache/types"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// defaultCompare builds the id comparator used when no sort function is
// configured. Numbers compare numerically, strings lexicographically (or by
// collation when a language is given). Any other id kind is rejected.
func defaultCompare[ID comparable](collation *language.Tag) (func(a, b ID) int, error) {
	var zero ID
	t := reflect.TypeOf(zero)
	if t == nil {
		return nil, fmt.Errorf("%w: interface id types need a sort function", types.ErrUnsupportedID)
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(a, b ID) int {
			return cmp.Compare(reflect.ValueOf(a).Int(), reflect.ValueOf(b).Int())
		}, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return func(a, b ID) int {
			return cmp.Compare(reflect.ValueOf(a).Uint(), reflect.ValueOf(b).Uint())
		}, nil

	case reflect.Float32, reflect.Float64:
		return func(a, b ID) int {
			return cmp.Compare(reflect.ValueOf(a).Float(), reflect.ValueOf(b).Float())
		}, nil

	case reflect.String:
		if collation == nil {
			return func(a, b ID) int {
				return strings.Compare(reflect.ValueOf(a).String(), reflect.ValueOf(b).String())
			}, nil
		}
		// Collator keeps internal buffers and is not safe for concurrent use
		var mu sync.Mutex
		c := collate.New(*collation)
		return func(a, b ID) int {
			mu.Lock()
			defer mu.Unlock()
			return c.CompareString(reflect.ValueOf(a).String(), reflect.ValueOf(b).String())
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedID, t)
	}
}
