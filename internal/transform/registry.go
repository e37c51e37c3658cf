package transform

import (
	"fmt"
	"sort"
	"sync"
)

// Registry indexes transforms by name.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]Transform
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{transforms: make(map[string]Transform)}
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Transform) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("transform name cannot be empty")
	}
	if _, exists := r.transforms[name]; exists {
		return fmt.Errorf("transform %q already registered", name)
	}
	r.transforms[name] = t
	return nil
}

// Get returns the transform registered under name.
func (r *Registry) Get(name string) (Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[name]
	return t, ok
}

// Lookup is Get with an error for unknown names.
func (r *Registry) Lookup(name string) (Transform, error) {
	if t, ok := r.Get(name); ok {
		return t, nil
	}
	return nil, &ErrUnknownTransform{Name: name}
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transforms))
	for name := range r.transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered transforms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transforms)
}
