package fetcher

import (
	"context"
	"sort"
	"sync"
)

// Provider fetches one kind of resource.
//
// Fetch performs a single attempt; the engine retries it according to the
// event's retry policy. Errors wrapped with Permanent are not retried.
// Process turns the fetched data into the result handed to the callback.
//
// A provider that implements Opener is opened before the first attempt,
// and one that implements io.Closer is closed when the task ends, whatever
// the outcome.
type Provider interface {
	Fetch(ctx context.Context) (any, error)
	Process(ctx context.Context, data any) (any, error)
}

// Opener is implemented by providers holding resources for a task.
type Opener interface {
	Open(ctx context.Context) error
}

// Factory creates a provider instance for one event.
type Factory func(event *FetchEvent) (Provider, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in "http" and "file"
// providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(HTTPProviderName, NewHTTPProvider)
	r.Register(FileProviderName, NewFileProvider)
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// New creates the provider named by event. Unknown names return a
// *ProviderNotFoundError.
func (r *Registry) New(event *FetchEvent) (Provider, error) {
	name := event.Provider
	if name == "" {
		name = DefaultProvider
	}

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ProviderNotFoundError{Name: name}
	}
	return factory(event)
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
