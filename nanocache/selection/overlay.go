// Package selection tracks one selected id over a cache and tells observers
// when the selection, or the selected entity, changes.
package selection

import (
	"github.com/arthur-debert/nanocache/nanocache/entity"
	"github.com/arthur-debert/nanocache/nanocache/notify"
	"github.com/arthur-debert/nanocache/nanocache/storage"
	"github.com/arthur-debert/nanocache/types"
)

// Source is the cache a selection reads through. The entity, dynamic and
// pagination caches all satisfy it; with a dynamic cache, reading the
// selection loads a stale entity like any other read.
type Source[E any, ID comparable] interface {
	GetOne(id ID) (E, bool)
	OnChange(fn func(entity.Change[ID])) (remove func())
	Hub() *notify.Hub
}

// Overlay holds the selected id. It is safe for concurrent use.
type Overlay[E any, ID comparable] struct {
	source Source[E, ID]
	remove func()

	lockManager *storage.LockManager
	selected    ID
	has         bool
}

// New creates an overlay with nothing selected
func New[E any, ID comparable](source Source[E, ID]) *Overlay[E, ID] {
	o := &Overlay[E, ID]{
		source:      source,
		lockManager: storage.NewLockManager(),
	}
	o.remove = source.OnChange(o.onChange)
	return o
}

// Close detaches the overlay from its source
func (o *Overlay[E, ID]) Close() {
	o.remove()
}

func (o *Overlay[E, ID]) onChange(ch entity.Change[ID]) {
	if ch.Op == entity.OpClear {
		o.source.Hub().Trigger(types.SelectedKey)
		return
	}

	selected, ok := o.Selected()
	if !ok {
		return
	}
	for _, id := range ch.IDs {
		if id == selected {
			o.source.Hub().Trigger(types.SelectedKey)
			return
		}
	}
}

// Selected returns the selected id
func (o *Overlay[E, ID]) Selected() (ID, bool) {
	var (
		id ID
		ok bool
	)
	o.lockManager.Do(storage.ReadOperation, func() {
		id, ok = o.selected, o.has
	})
	return id, ok
}

// GetSelected returns the selected entity through the source
func (o *Overlay[E, ID]) GetSelected() (E, bool) {
	id, ok := o.Selected()
	if !ok {
		var zero E
		return zero, false
	}
	return o.source.GetOne(id)
}

// SetSelected selects id. Selecting the current id again does nothing.
func (o *Overlay[E, ID]) SetSelected(id ID) {
	o.set(id, true)
}

// Deselect clears the selection
func (o *Overlay[E, ID]) Deselect() {
	var zero ID
	o.set(zero, false)
}

func (o *Overlay[E, ID]) set(id ID, has bool) {
	changed := storage.With(o.lockManager, storage.WriteOperation, func() bool {
		if o.has == has && (!has || o.selected == id) {
			return false
		}
		o.selected, o.has = id, has
		return true
	})
	if changed {
		o.source.Hub().Trigger(types.SelectedKey)
	}
}

// Subscribe registers fn for selection changes
func (o *Overlay[E, ID]) Subscribe(fn notify.Callback) *notify.Subscription {
	return o.source.Hub().Subscribe(fn, types.SelectedKey)
}
