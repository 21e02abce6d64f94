package future

import (
	"context"
	"sync"
)

// Tracker counts outstanding operations and lets callers wait until there
// are none
type Tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

// NewTracker returns an idle tracker
func NewTracker() *Tracker {
	idle := make(chan struct{})
	close(idle)
	return &Tracker{idle: idle}
}

// Add registers one outstanding operation
func (t *Tracker) Add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
}

// Done marks one operation as finished
func (t *Tracker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		panic("future: Tracker.Done called more often than Add")
	}
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

// Len returns the number of outstanding operations
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

// Wait blocks until no operation is outstanding or ctx is done. Operations
// added while waiting extend the wait.
func (t *Tracker) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		idle := t.idle
		t.mu.Unlock()

		select {
		case <-idle:
			if t.Len() == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
