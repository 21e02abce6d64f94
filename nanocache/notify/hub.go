// Package notify implements the observer side of the caches: consumers
// subscribe to string channels, cache layers trigger them after every state
// change. Bulk mutations open a batch so observers see one settled state
// rather than each intermediate step.
package notify

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Callback receives the channels that fired, deduplicated and sorted
type Callback func(keys []string)

// Notifier is what cache layers call into after a state change
type Notifier interface {
	// Trigger informs every observer subscribed to any of keys
	Trigger(keys ...string)

	// Begin opens a batch. Triggers are held until the returned Batch is
	// ended. Batches nest; only the outermost End delivers.
	Begin() *Batch
}

// Hub is the default Notifier. It is safe for concurrent use.
type Hub struct {
	subs *xsync.MapOf[uuid.UUID, *subscription]

	mu      sync.Mutex
	depth   int
	pending map[string]struct{}
}

type subscription struct {
	keys map[string]struct{}
	all  bool
	fn   Callback
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs:    xsync.NewMapOf[uuid.UUID, *subscription](),
		pending: make(map[string]struct{}),
	}
}

// Subscribe registers fn for the given channels. With no keys the callback
// receives every trigger.
func (h *Hub) Subscribe(fn Callback, keys ...string) *Subscription {
	sub := &subscription{
		keys: make(map[string]struct{}, len(keys)),
		all:  len(keys) == 0,
		fn:   fn,
	}
	for _, k := range keys {
		sub.keys[k] = struct{}{}
	}

	id := uuid.New()
	h.subs.Store(id, sub)
	return &Subscription{id: id, hub: h}
}

// Trigger implements Notifier
func (h *Hub) Trigger(keys ...string) {
	if len(keys) == 0 {
		return
	}

	h.mu.Lock()
	if h.depth > 0 {
		for _, k := range keys {
			h.pending[k] = struct{}{}
		}
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	h.deliver(set)
}

// Begin implements Notifier
func (h *Hub) Begin() *Batch {
	h.mu.Lock()
	h.depth++
	h.mu.Unlock()
	return &Batch{hub: h}
}

// Len returns the number of live subscriptions
func (h *Hub) Len() int {
	return h.subs.Size()
}

func (h *Hub) end() {
	h.mu.Lock()
	h.depth--
	if h.depth > 0 || len(h.pending) == 0 {
		h.mu.Unlock()
		return
	}
	fired := h.pending
	h.pending = make(map[string]struct{})
	h.mu.Unlock()

	h.deliver(fired)
}

// deliver runs callbacks outside the hub lock so observers may read from
// the cache or trigger again
func (h *Hub) deliver(fired map[string]struct{}) {
	h.subs.Range(func(_ uuid.UUID, sub *subscription) bool {
		var matched []string
		for k := range fired {
			if _, ok := sub.keys[k]; sub.all || ok {
				matched = append(matched, k)
			}
		}
		if len(matched) > 0 {
			sort.Strings(matched)
			sub.fn(matched)
		}
		return true
	})
}

// Subscription is the handle returned by Subscribe
type Subscription struct {
	id   uuid.UUID
	hub  *Hub
	once sync.Once
}

// ID identifies the subscription
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Unsubscribe stops further deliveries. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.subs.Delete(s.id)
	})
}

// Batch is an open notification block
type Batch struct {
	hub  *Hub
	once sync.Once
}

// End closes the batch. Extra calls are ignored.
func (b *Batch) End() {
	b.once.Do(b.hub.end)
}
