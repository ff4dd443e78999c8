// Package platform normalizes webhook payloads from the supported
// e-commerce platforms into one canonical order shape. Each platform is
// one Adapter registered at startup; adding a platform never touches the
// pipeline.
package platform

import (
	"fmt"
	"sync"
)

// Registry holds the registered platform adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its platform tag. Registering the same
// tag twice is a programming error.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := adapter.Platform()
	if _, exists := r.adapters[tag]; exists {
		panic(fmt.Sprintf("platform adapter %q registered twice", tag))
	}
	r.adapters[tag] = adapter
}

// Get returns the adapter for a platform tag.
func (r *Registry) Get(tag string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[tag]
	return adapter, ok
}

// Platforms lists the registered platform tags.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	return tags
}

// DefaultRegistry builds a registry with every supported platform.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewShopifyAdapter())
	r.Register(NewWooCommerceAdapter())
	r.Register(NewDarazAdapter())
	r.Register(NewCustomAdapter())
	return r
}
