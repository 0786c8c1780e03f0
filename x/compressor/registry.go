package compressor

import (
	"sort"
	"sync"
)

// Factory builds a Compressor from a Config.
type Factory func(Config) (Compressor, error)

// Registry maps compressor kinds to factories.
type Registry interface {
	Register(kind string, factory Factory)
	Get(kind string) (Factory, bool)
	Default() Factory
	Kinds() []string
}

// DefaultRegistry holds the built-in ratio and shadow kinds.
var DefaultRegistry = NewRegistry()

// registry implements Registry interface
type registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	default_  string
}

// NewRegistry creates a registry with the built-in kinds, defaulting to shadow.
func NewRegistry() Registry {
	r := &registry{
		factories: make(map[string]Factory),
	}
	r.Register(RatioKind, NewRatioCompressor)
	r.Register(ShadowKind, NewShadowCompressor)
	r.default_ = ShadowKind

	return r
}

func (r *registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

func (r *registry) Get(kind string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, exists := r.factories[kind]
	return f, exists
}

func (r *registry) Default() Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factories[r.default_]
}

// Kinds returns the registered kinds in sorted order.
func (r *registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
