package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Config gates which storage backends may be opened. Resolved once at
// startup; an empty list enables everything registered.
type Config struct {
	Enabled []string `env:"AGENTPAY_ENABLED_STORAGE" envSeparator:","`
}

// CloseFunc releases the resources behind an opened backend.
type CloseFunc func()

// Constructor opens a backend instance from its own configuration.
type Constructor func(ctx context.Context) (Storage, CloseFunc, error)

// Registry maps backend names to constructors and applies the enablement
// policy. Opening a disabled variant fails with ErrStorageDisabled instead
// of silently handing out a backend the operator excluded.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	enabled      []string
}

// NewRegistry creates a registry with the given enablement policy.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		enabled:      cfg.Enabled,
	}
}

// Register adds a constructor under a name. Later registrations replace
// earlier ones.
func (r *Registry) Register(name string, fn Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = fn
}

// Open constructs the named backend, enforcing the enablement policy.
func (r *Registry) Open(ctx context.Context, name string) (Storage, CloseFunc, error) {
	r.mu.RLock()
	fn, ok := r.constructors[name]
	enabled := len(r.enabled) == 0 || slices.Contains(r.enabled, name)
	r.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownStorage, name)
	}
	if !enabled {
		return nil, nil, fmt.Errorf("%w: %s", ErrStorageDisabled, name)
	}
	return fn(ctx)
}

// Names returns all registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
