package tracker

import (
	"context"
	"sync"
)

// scopeKey is the context key under which the active scope slot is stored.
type scopeKey struct{}

// scope is the slot stored in a context. Its handle is fixed at creation;
// finishing that handle clears it for every context derived from the slot.
type scope struct {
	mu     sync.Mutex
	handle *Handle
}

func (s *scope) get() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// clearIf empties the slot only if it still points at h.
func (s *scope) clearIf(h *Handle) {
	s.mu.Lock()
	if s.handle == h {
		s.handle = nil
	}
	s.mu.Unlock()
}

func scopeFrom(ctx context.Context) *scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// Run calls fn with a context carrying a fresh scope slot that holds h.
func Run(ctx context.Context, h *Handle, fn func(ctx context.Context) error) error {
	return fn(withScope(ctx, h))
}

// Current returns the interaction active in ctx, or nil.
func Current(ctx context.Context) *Handle {
	if s := scopeFrom(ctx); s != nil {
		return s.get()
	}
	return nil
}

// Enter returns a context derived from ctx in which h is the active
// interaction. ctx itself is never modified, so sibling goroutines sharing
// it keep their own interaction. Enter(ctx, nil) returns a context with no
// active interaction.
func Enter(ctx context.Context, h *Handle) context.Context {
	if h == nil && scopeFrom(ctx) == nil {
		return ctx
	}
	return withScope(ctx, h)
}

func withScope(ctx context.Context, h *Handle) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &scope{handle: h}
	if h != nil {
		h.track(s)
	}
	return context.WithValue(ctx, scopeKey{}, s)
}
