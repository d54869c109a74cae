package provider

import (
	"sort"

	"github.com/go-acme/lego/v4/challenge"

	"github.com/revprox/revprox/internal/config"
	"github.com/revprox/revprox/internal/errors"
	"github.com/revprox/revprox/internal/logger"
	"github.com/revprox/revprox/internal/output"
)

// DefaultName is the provider identifier treated as the run's default when
// it is declared.
const DefaultName = "default"

// Set holds the providers that resolved successfully for one run, plus the
// per-provider construction failures for reporting.
type Set struct {
	providers   map[string]challenge.Provider
	failures    map[string]error
	defaultName string
}

// BuildSet resolves every declared ProviderSpec against the registry.
//
// An unknown type identifier is fatal for the whole run: the operator has
// declared something the engine cannot ever satisfy. A factory failure
// (bad credentials, missing parameter) only makes that one provider
// unavailable. Zero resolved providers is fatal, since certificate
// operations are impossible.
//
// The default is the provider named "default" when present; otherwise the
// lexicographically first resolved identifier, so the pick is deterministic
// across runs.
func BuildSet(registry *Registry, specs map[string]*config.ProviderSpec) (*Set, error) {
	set := &Set{
		providers: make(map[string]challenge.Provider),
		failures:  make(map[string]error),
	}

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := specs[name]
		p, err := registry.Resolve(spec.Type, spec.Config)
		if err != nil {
			if errors.CodeOf(err) == errors.CodeConfig {
				return nil, errors.Fatal(err)
			}
			logger.Warn("DNS provider %s is unavailable: %v", name, err)
			set.failures[name] = err
			continue
		}
		set.providers[name] = p
	}

	if len(set.providers) == 0 {
		return nil, errors.Fatal(errors.New(errors.CodeProvider, "no valid DNS provider configuration"))
	}

	if _, ok := set.providers[DefaultName]; ok {
		set.defaultName = DefaultName
	} else {
		resolved := set.Names()
		set.defaultName = resolved[0]
	}
	// The pick must be announced even without --verbose, so an operator who
	// relies on the fallback sees which provider was chosen.
	output.Info("Using DNS provider %s as the default provider.", set.defaultName)

	return set, nil
}

// Get returns a resolved provider by identifier.
func (s *Set) Get(name string) (challenge.Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// Default returns the run's default provider.
func (s *Set) Default() challenge.Provider {
	return s.providers[s.defaultName]
}

// DefaultName returns the identifier of the run's default provider.
func (s *Set) DefaultName() string {
	return s.defaultName
}

// Names returns the identifiers of all resolved providers in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failures returns the construction errors of providers that did not
// resolve, keyed by identifier.
func (s *Set) Failures() map[string]error {
	return s.failures
}
