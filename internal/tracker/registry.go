package tracker

import (
	"sync"
)

// registry holds the unfinished interactions by ID so they can be resumed.
type registry struct {
	mu     sync.RWMutex
	active map[string]*Handle
}

func newRegistry() *registry {
	return &registry{
		active: make(map[string]*Handle),
	}
}

// put registers h, replacing any earlier handle with the same ID.
func (r *registry) put(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active[h.ID()] = h
}

func (r *registry) get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.active[id]
	return h, ok
}

// remove deletes h's entry, but only if the entry is h itself.
func (r *registry) remove(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.active[h.ID()]; ok && cur == h {
		delete(r.active, h.ID())
		return true
	}
	return false
}

func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.active)
}
