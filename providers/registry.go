package providers

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps provider names to configured providers. It is built once at
// startup and is read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	providers map[string]Provider
	names     []string
}

// NewRegistry creates a registry from the given providers.
// Names are matched case-insensitively; duplicates are a configuration error.
func NewRegistry(list ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(list))}
	for _, p := range list {
		if p == nil {
			return nil, NewConfigurationError("", "nil provider", nil)
		}
		key := strings.ToLower(p.Name())
		if key == "" {
			return nil, NewConfigurationError("", "provider with empty name", nil)
		}
		if _, exists := r.providers[key]; exists {
			return nil, NewConfigurationError(key, fmt.Sprintf("provider %q registered twice", key), nil)
		}
		r.providers[key] = p
		r.names = append(r.names, key)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the provider registered under name
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, NewUnsupportedProviderError(name, r.Names())
	}
	return p, nil
}

// Names returns the sorted provider identifiers
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	return len(r.providers)
}
