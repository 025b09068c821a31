package oauth

import (
	"fmt"
	"slices"
)

// Registry holds the configured providers keyed by id. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	providers map[string]*Provider
	ids       []string
}

// NewRegistry validates and indexes providers. Ids must be unique.
func NewRegistry(providers ...*Provider) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]*Provider, len(providers)),
		ids:       make([]string, 0, len(providers)),
	}
	for _, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("nil provider")
		}
		if p.ID == "" {
			return nil, fmt.Errorf("provider id is required")
		}
		if p.Client == nil {
			return nil, fmt.Errorf("provider %s: client is required", p.ID)
		}
		if p.StateCookieName == "" {
			return nil, fmt.Errorf("provider %s: state cookie name is required", p.ID)
		}
		if p.Issuer == "" {
			return nil, fmt.Errorf("provider %s: issuer is required", p.ID)
		}
		if _, exists := r.providers[p.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, p.ID)
		}
		r.providers[p.ID] = p
		r.ids = append(r.ids, p.ID)
	}
	return r, nil
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (*Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return p, nil
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	return slices.Clone(r.ids)
}
