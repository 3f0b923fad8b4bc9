package provider

import (
	"fmt"
	"sort"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// Registry is an explicit lookup table of adapters keyed by provider id.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry registers the given adapters. Duplicate ids are rejected.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		if _, exists := r.adapters[a.ID()]; exists {
			return nil, fmt.Errorf("duplicate provider id %q", a.ID())
		}
		r.adapters[a.ID()] = a
	}
	return r, nil
}

// Lookup returns the adapter registered under id.
func (r *Registry) Lookup(id string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adapters[id]
	return a, ok
}

// Resolve picks the provider id for a keyword. A registered per-keyword engine wins;
// anything else falls back to the global provider. The fallback fails with
// tracker.ErrNotSelectable when the global provider is per-keyword only.
func (r *Registry) Resolve(kw tracker.KeywordRecord, settings tracker.Settings) (string, error) {
	if kw.Engine != "" {
		if _, ok := r.Lookup(kw.Engine); ok {
			return kw.Engine, nil
		}
	}
	if a, ok := r.Lookup(settings.ProviderID); ok && a.PerKeywordOnly() {
		return settings.ProviderID, fmt.Errorf("%w: %q", tracker.ErrNotSelectable, settings.ProviderID)
	}
	return settings.ProviderID, nil
}

// CheckGlobal reports whether id can be configured as the global provider.
func (r *Registry) CheckGlobal(id string) error {
	if _, ok := r.Lookup(id); !ok {
		return fmt.Errorf("%w: %q", tracker.ErrUnknownProvider, id)
	}
	for _, a := range r.Selectable() {
		if a.ID() == id {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", tracker.ErrNotSelectable, id)
}

// Selectable lists adapters that may be configured as the global provider, sorted by id.
func (r *Registry) Selectable() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if !a.PerKeywordOnly() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// All lists every registered adapter, sorted by id.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
