package observability

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry is a name -> Observer mapping, mirroring item.Registry's
// explicit-registration shape: nothing is discovered by package name, a
// caller populates it, and lookups fail closed on an unknown name.
type Registry struct {
	mu        sync.RWMutex
	observers map[string]Observer
}

// NewRegistry returns a Registry pre-populated with the two observers every
// flowkernel deployment can reach for without wiring its own: "noop" and
// "slog" (backed by slog.Default()).
func NewRegistry() *Registry {
	return &Registry{
		observers: map[string]Observer{
			"noop": NoOpObserver{},
			"slog": NewSlogObserver(slog.Default()),
		},
	}
}

// Get returns the observer registered under name.
func (r *Registry) Get(name string) (Observer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obs, ok := r.observers[name]
	if !ok {
		return nil, fmt.Errorf("observability: unknown observer %q", name)
	}
	return obs, nil
}

// Register adds or replaces the observer under name.
func (r *Registry) Register(name string, observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observers[name] = observer
}

// defaultRegistry backs the package-level GetObserver/RegisterObserver
// convenience functions for callers with no reason to own a Registry of
// their own.
var defaultRegistry = NewRegistry()

// GetObserver returns a registered observer by name from the default
// registry. Pre-registered: "noop" (NoOpObserver) and "slog" (default
// logger).
func GetObserver(name string) (Observer, error) {
	return defaultRegistry.Get(name)
}

// RegisterObserver adds or replaces a named observer in the default
// registry.
func RegisterObserver(name string, observer Observer) {
	defaultRegistry.Register(name, observer)
}
