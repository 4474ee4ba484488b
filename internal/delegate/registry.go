package delegate

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotRegistered is returned when a process references an unknown delegate.
var ErrNotRegistered = errors.New("delegate not registered")

// Registry holds the delegates service tasks can call, keyed by the name used
// in delegate expressions.
type Registry struct {
	mu        sync.RWMutex
	delegates map[string]Delegate
}

// NewRegistry creates an empty delegate registry.
func NewRegistry() *Registry {
	return &Registry{
		delegates: make(map[string]Delegate),
	}
}

// Register adds a delegate under the given name, replacing any previous one.
func (r *Registry) Register(name string, d Delegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegates[name] = d
}

// Resolve returns the delegate registered under name.
func (r *Registry) Resolve(name string) (Delegate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.delegates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return d, nil
}

// Names returns the registered delegate names, sorted for a stable API response.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.delegates))
	for name := range r.delegates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
