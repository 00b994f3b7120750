package adapter

import (
	"sync"

	"github.com/tjfontaine/rd-mini/internal/core/ports"
)

// Registry maps providers to adapters. Providers without a registered
// adapter get a Generic one.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[Provider]ports.Adapter
	estimator *TokenEstimator
}

// NewRegistry creates a registry sharing one token estimator across its
// generic adapters.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[Provider]ports.Adapter),
		estimator: NewTokenEstimator(),
	}
}

// Register sets the adapter used for p.
func (r *Registry) Register(p Provider, a ports.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[p] = a
}

// For returns the adapter for p.
func (r *Registry) For(p Provider) ports.Adapter {
	r.mu.RLock()
	a, ok := r.adapters[p]
	r.mu.RUnlock()
	if ok {
		return a
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[p]; ok {
		return a
	}
	a = NewGeneric(p, WithEstimator(r.estimator))
	r.adapters[p] = a
	return a
}

// ForClient detects the client's provider and returns its adapter.
func (r *Registry) ForClient(client any) ports.Adapter {
	return r.For(Detect(client))
}
