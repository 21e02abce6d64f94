package testutil

import (
	"context"
	"sync"
)

// Loader is a load function that records its calls. Loads can be held until
// Release so tests can observe the in-flight state.
type Loader struct {
	mu    sync.Mutex
	calls map[int]int
	fail  map[int]error
	empty map[int]bool
	hold  chan struct{}

	// Make builds the loaded item. Defaults to NewItem.
	Make func(id int) Item
}

// NewLoader creates a loader that answers immediately
func NewLoader() *Loader {
	return &Loader{
		calls: make(map[int]int),
		fail:  make(map[int]error),
		empty: make(map[int]bool),
	}
}

// Load fetches one item. It matches types.LoadFunc[Item, int].
func (l *Loader) Load(ctx context.Context, id int) (Item, error) {
	l.mu.Lock()
	l.calls[id]++
	hold := l.hold
	err := l.fail[id]
	empty := l.empty[id]
	makeItem := l.Make
	l.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return Item{}, ctx.Err()
		}
	}

	if err != nil {
		return Item{}, err
	}
	if empty {
		return Item{}, nil
	}
	if makeItem != nil {
		return makeItem(id), nil
	}
	return NewItem(id), nil
}

// Fail makes every load of id return err. A nil err clears the failure.
func (l *Loader) Fail(id int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.fail, id)
		return
	}
	l.fail[id] = err
}

// Empty makes loads of id succeed with the zero Item
func (l *Loader) Empty(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.empty[id] = true
}

// Hold blocks subsequent loads until Release
func (l *Loader) Hold() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hold == nil {
		l.hold = make(chan struct{})
	}
}

// Release lets held loads finish
func (l *Loader) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hold != nil {
		close(l.hold)
		l.hold = nil
	}
}

// Calls returns how often id was loaded
func (l *Loader) Calls(id int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[id]
}

// Total returns the number of loads across all ids
func (l *Loader) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.calls {
		total += n
	}
	return total
}
