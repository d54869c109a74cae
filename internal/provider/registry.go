// Package provider maintains the registry of DNS-challenge providers the
// certificate manager can use to prove domain ownership.
//
// Providers are polymorphic over a single capability, lego's
// challenge.Provider (Present/CleanUp of the DNS-01 TXT record). The
// registry maps a type identifier from the specification document to a
// factory; built-in factories over lego's own DNS providers are registered
// at startup, and additional ones can be added through the same Register
// call.
package provider

import (
	"sort"

	"github.com/go-acme/lego/v4/challenge"

	"github.com/revprox/revprox/internal/errors"
)

// Factory constructs a challenge provider from the arbitrary key/value
// parameters declared in the specification document.
type Factory func(params map[string]string) (challenge.Provider, error)

// Registry maps provider type identifiers to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given type identifier, replacing any
// previous registration.
func (r *Registry) Register(typeID string, factory Factory) {
	r.factories[typeID] = factory
}

// Resolve constructs a provider of the given type. An unknown type is a
// CONFIG error (the caller treats it as fatal); a factory failure is a
// PROVIDER error (that provider is simply unavailable).
func (r *Registry) Resolve(typeID string, params map[string]string) (challenge.Provider, error) {
	factory, ok := r.factories[typeID]
	if !ok {
		return nil, errors.Newf(errors.CodeConfig,
			"unknown DNS provider type %q (available: %v)", typeID, r.Types())
	}
	p, err := factory(params)
	if err != nil {
		return nil, errors.Wrap(errors.CodeProvider, "failed to construct DNS provider", err)
	}
	return p, nil
}

// Types returns the registered type identifiers in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// requireParam fetches a mandatory construction parameter.
func requireParam(params map[string]string, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return "", errors.Newf(errors.CodeProvider, "missing required parameter %q", key)
	}
	return v, nil
}
