// Package config models the declarative specification document that drives a
// revprox run: the DNS-challenge providers available to the certificate
// manager and the domains whose certificates and nginx configuration this
// engine maintains.
//
// The document is owned by an external, version-controlled source; this
// package only reads it. Expected shape:
//
//	dns:
//	  default:
//	    type: cloudflare
//	    config:
//	      auth_token: "..."
//	domains:
//	  example.com:
//	    subdomains:
//	      app: http://127.0.0.1:8080
//	    ssl:
//	      enabled: true
//	      forced: true
//	      email: admin@example.com
//	    forward_others: https://parking.example.com
//	    dns: default
package config

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/revprox/revprox/internal/errors"
)

// Spec is the top-level specification document.
type Spec struct {
	DNS     map[string]*ProviderSpec `yaml:"dns"`
	Domains map[string]*DomainSpec   `yaml:"domains"`
}

// ProviderSpec declares one DNS-challenge provider: its type identifier and
// arbitrary construction parameters passed through to the provider factory.
type ProviderSpec struct {
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config"`
}

// SSLSpec is a domain's TLS policy.
type SSLSpec struct {
	Enabled bool   `yaml:"enabled"`
	Forced  bool   `yaml:"forced"`
	Email   string `yaml:"email"`
}

// DomainSpec describes one public domain: its subdomain upstreams, TLS
// policy, optional provider override, and optional catch-all redirect target.
type DomainSpec struct {
	Subdomains    map[string]string `yaml:"subdomains"`
	SSL           *SSLSpec          `yaml:"ssl"`
	ForwardOthers string            `yaml:"forward_others"`
	DNS           string            `yaml:"dns"`
}

// UseSSL reports whether TLS is enabled for the domain.
func (d *DomainSpec) UseSSL() bool {
	return d.SSL != nil && d.SSL.Enabled
}

// ForceSSL reports whether plaintext requests must redirect to HTTPS.
// Only meaningful when UseSSL is true.
func (d *DomainSpec) ForceSSL() bool {
	return d.UseSSL() && d.SSL.Forced
}

// MissingEmail reports whether TLS is requested without the mandatory
// account email. Such domains are excluded from the run.
func (d *DomainSpec) MissingEmail() bool {
	return d.UseSSL() && strings.TrimSpace(d.SSL.Email) == ""
}

// SubdomainLabels returns the configured subdomain labels in sorted order.
func (d *DomainSpec) SubdomainLabels() []string {
	labels := make([]string, 0, len(d.Subdomains))
	for label := range d.Subdomains {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// DomainNames returns the declared domain names in sorted order so a run
// always processes domains deterministically.
func (s *Spec) DomainNames() []string {
	names := make([]string, 0, len(s.Domains))
	for name := range s.Domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads and parses the specification document at path. A missing or
// unparsable document is an error; the caller treats it as fatal.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.CodeConfig, "specification %s not found", path)
		}
		return nil, errors.Wrap(errors.CodeConfig, "failed to read specification", err)
	}

	spec := &Spec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, errors.Wrap(errors.CodeConfig, "failed to parse specification", err)
	}

	if spec.DNS == nil {
		spec.DNS = make(map[string]*ProviderSpec)
	}
	if spec.Domains == nil {
		spec.Domains = make(map[string]*DomainSpec)
	}

	for name, d := range spec.Domains {
		if d == nil {
			return nil, errors.Newf(errors.CodeConfig, "domain %s has no configuration", name)
		}
		if err := ValidateDomain(name); err != nil {
			return nil, err
		}
	}
	for name, p := range spec.DNS {
		if p == nil || strings.TrimSpace(p.Type) == "" {
			return nil, errors.Newf(errors.CodeConfig, "dns provider %s has no type", name)
		}
	}

	return spec, nil
}

// ValidateDomain checks that name is usable as a DNS name and a directory
// name under the storage root.
func ValidateDomain(name string) error {
	switch {
	case name == "":
		return errors.New(errors.CodeConfig, "domain cannot be empty")
	case strings.ContainsAny(name, " /\\"):
		return errors.Newf(errors.CodeConfig, "invalid domain name: %q", name)
	case strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-"):
		return errors.Newf(errors.CodeConfig, "domain cannot start or end with hyphen: %q", name)
	case strings.HasPrefix(name, ".") || strings.HasSuffix(name, "."):
		return errors.Newf(errors.CodeConfig, "domain cannot start or end with a dot: %q", name)
	}
	return nil
}
