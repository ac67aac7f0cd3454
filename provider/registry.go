package provider

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Config gates which providers may be constructed. Resolved once at startup;
// an empty list enables everything registered.
type Config struct {
	Enabled []string `env:"AGENTPAY_ENABLED_PROVIDERS" envSeparator:","`
}

// Constructor builds a provider instance from its own configuration.
type Constructor func() (Provider, error)

// Registry maps provider names to constructors and applies the enablement
// policy. Construction of a disabled variant fails with ErrProviderDisabled
// instead of silently producing a dead gateway.
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

// New constructs the named provider, enforcing the enablement policy.
func (r *Registry) New(name string) (Provider, error) {
	r.mu.RLock()
	fn, ok := r.constructors[name]
	enabled := len(r.enabled) == 0 || slices.Contains(r.enabled, name)
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	if !enabled {
		return nil, fmt.Errorf("%w: %s", ErrProviderDisabled, name)
	}
	return fn()
}

// Names returns all registered provider names, sorted.
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
