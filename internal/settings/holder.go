package settings

import (
	"sync"
	"sync/atomic"
)

// Holder publishes settings snapshots. Readers call Load once per frame and
// never block writers.
type Holder struct {
	current atomic.Pointer[Settings]

	mu     sync.Mutex // serializes writers and guards subs
	subs   map[int]func(Settings)
	nextID int
}

// NewHolder publishes initial.
func NewHolder(initial Settings) *Holder {
	h := &Holder{subs: make(map[int]func(Settings))}
	s := initial.Clone()
	h.current.Store(&s)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() Settings {
	return *h.current.Load()
}

// Update replaces the snapshot with the result of fn applied to the current
// one. Subscribers are notified after the new value is published. If fn
// returns an error nothing changes.
func (h *Holder) Update(fn func(Settings) (Settings, error)) (Settings, error) {
	h.mu.Lock()
	cur := h.Load()
	next, err := fn(cur.Clone())
	if err != nil {
		h.mu.Unlock()
		return cur, err
	}
	next = next.Clone()
	h.current.Store(&next)
	subs := make([]func(Settings), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next, nil
}

// Store validates and publishes s.
func (h *Holder) Store(s Settings) error {
	_, err := h.Update(func(Settings) (Settings, error) {
		return s, s.Validate()
	})
	return err
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (h *Holder) Subscribe(fn func(Settings)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}
