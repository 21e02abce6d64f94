// Package identity holds the ground truth of every cache: a map from id to
// entity, with ordered enumeration and bulk replacement.
package identity

import (
	"fmt"
	"slices"

	"github.com/arthur-debert/nanocache/nanocache/option"
	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
)

// Index maps ids to entities. It is safe for concurrent use.
type Index[E any, ID comparable] struct {
	selectID    types.SelectIDFunc[E, ID]
	sort        types.SortFunc[E]
	lockManager *storage.LockManager
	entities    map[ID]E
}

// New creates an empty index. When sort is nil, entities are ordered by id;
// that requires a numeric or string id type.
func New[E any, ID comparable](selectID types.SelectIDFunc[E, ID], sort types.SortFunc[E], opts ...option.Option) (*Index[E, ID], error) {
	if selectID == nil {
		return nil, fmt.Errorf("%w: selectID is required", types.ErrInvalidArgument)
	}

	if sort == nil {
		settings := option.Apply(opts...)
		compareIDs, err := defaultCompare[ID](settings.Collation)
		if err != nil {
			return nil, err
		}
		sort = func(a, b E) int {
			return compareIDs(selectID(a), selectID(b))
		}
	}

	return &Index[E, ID]{
		selectID:    selectID,
		sort:        sort,
		lockManager: storage.NewLockManager(),
		entities:    make(map[ID]E),
	}, nil
}

// ID returns the id of e
func (x *Index[E, ID]) ID(e E) ID {
	return x.selectID(e)
}

// Compare orders two entities the way GetAll does
func (x *Index[E, ID]) Compare(a, b E) int {
	return x.sort(a, b)
}

// Has reports whether id is present
func (x *Index[E, ID]) Has(id ID) bool {
	return storage.With(x.lockManager, storage.ReadOperation, func() bool {
		_, ok := x.entities[id]
		return ok
	})
}

// Len returns the number of entities
func (x *Index[E, ID]) Len() int {
	return storage.With(x.lockManager, storage.ReadOperation, func() int {
		return len(x.entities)
	})
}

// Add stores e under its id, overwriting any previous entity
func (x *Index[E, ID]) Add(e E) ID {
	id := x.selectID(e)
	x.lockManager.Do(storage.WriteOperation, func() {
		x.entities[id] = e
	})
	return id
}

// AddAll adds every entity and returns their ids in input order
func (x *Index[E, ID]) AddAll(entities []E) []ID {
	ids := make([]ID, len(entities))
	x.lockManager.Do(storage.WriteOperation, func() {
		for i, e := range entities {
			ids[i] = x.selectID(e)
			x.entities[ids[i]] = e
		}
	})
	return ids
}

// Get returns the entity stored under id
func (x *Index[E, ID]) Get(id ID) (E, bool) {
	var (
		e  E
		ok bool
	)
	x.lockManager.Do(storage.ReadOperation, func() {
		e, ok = x.entities[id]
	})
	return e, ok
}

// GetMany returns the entities for ids in input order, skipping misses
func (x *Index[E, ID]) GetMany(ids []ID) []E {
	return storage.With(x.lockManager, storage.ReadOperation, func() []E {
		result := make([]E, 0, len(ids))
		for _, id := range ids {
			if e, ok := x.entities[id]; ok {
				result = append(result, e)
			}
		}
		return result
	})
}

// GetAll returns every entity in sort order
func (x *Index[E, ID]) GetAll() []E {
	all := storage.With(x.lockManager, storage.ReadOperation, func() []E {
		result := make([]E, 0, len(x.entities))
		for _, e := range x.entities {
			result = append(result, e)
		}
		return result
	})
	slices.SortStableFunc(all, x.sort)
	return all
}

// GetAllMapped returns a copy of the id to entity map
func (x *Index[E, ID]) GetAllMapped() map[ID]E {
	return storage.With(x.lockManager, storage.ReadOperation, func() map[ID]E {
		m := make(map[ID]E, len(x.entities))
		for id, e := range x.entities {
			m[id] = e
		}
		return m
	})
}

// RemoveOne removes e by its id. ok is false when it was not present.
func (x *Index[E, ID]) RemoveOne(e E) (id ID, ok bool) {
	id = x.selectID(e)
	_, ok = x.RemoveOneByID(id)
	return id, ok
}

// RemoveOneByID removes the entity stored under id and returns it
func (x *Index[E, ID]) RemoveOneByID(id ID) (removed E, ok bool) {
	x.lockManager.Do(storage.WriteOperation, func() {
		removed, ok = x.entities[id]
		delete(x.entities, id)
	})
	return removed, ok
}

// Clear removes everything and returns the removed ids in sort order
func (x *Index[E, ID]) Clear() []ID {
	return x.ReplaceAll(nil)
}

// ReplaceAll swaps the content for entities and returns the ids that were
// present before and are absent now, in sort order. Replacing with an empty
// list clears the index.
func (x *Index[E, ID]) ReplaceAll(entities []E) []ID {
	var removed []E
	x.lockManager.Do(storage.WriteOperation, func() {
		next := make(map[ID]E, len(entities))
		for _, e := range entities {
			next[x.selectID(e)] = e
		}
		for id, e := range x.entities {
			if _, kept := next[id]; !kept {
				removed = append(removed, e)
			}
		}
		x.entities = next
	})

	slices.SortStableFunc(removed, x.sort)
	ids := make([]ID, len(removed))
	for i, e := range removed {
		ids[i] = x.selectID(e)
	}
	return ids
}
