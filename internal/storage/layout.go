// Package storage owns the on-disk layout under the revprox storage root:
//
//	<root>/config/config.yml          specification checkout
//	<root>/certs/<domain>/...         per-domain certificate records
//	<root>/nginx/<domain>/main.cfg    per-domain aggregate config
//	<root>/nginx/<domain>/subdomains/<label>.cfg
//	<root>/nginx/revprox.cfg          top-level aggregate
//	<root>/.revprox-state.yml         last processed specification revision
//
// It also provides the atomic-commit primitive used for every generated
// artifact and revision detection for the specification checkout.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/revprox/revprox/internal/errors"
)

// SpecFileName is the specification document inside the config checkout.
const SpecFileName = "config.yml"

// Layout computes every path the engine touches under one storage root.
type Layout struct {
	Root string
}

// NewLayout validates the storage root and returns a Layout for it.
// The root must exist, be a directory, and be readable and writable.
func NewLayout(root string) (Layout, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return Layout{}, errors.Newf(errors.CodeStorage, "storage directory %s does not exist", root)
		}
		return Layout{}, errors.Wrap(errors.CodeStorage, "cannot access storage directory", err)
	}
	if !info.IsDir() {
		return Layout{}, errors.Newf(errors.CodeStorage, "storage path %s is not a directory", root)
	}

	if _, err := os.ReadDir(root); err != nil {
		return Layout{}, errors.Wrap(errors.CodeStorage, "storage directory is not readable", err)
	}
	probe, err := os.CreateTemp(root, ".revprox-probe-*")
	if err != nil {
		return Layout{}, errors.Wrap(errors.CodeStorage, "storage directory is not writable", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return Layout{Root: root}, nil
}

// ConfigDir is the specification checkout directory.
func (l Layout) ConfigDir() string {
	return filepath.Join(l.Root, "config")
}

// SpecFile is the specification document path.
func (l Layout) SpecFile() string {
	return filepath.Join(l.ConfigDir(), SpecFileName)
}

// CertsDir is the root of all certificate records.
func (l Layout) CertsDir() string {
	return filepath.Join(l.Root, "certs")
}

// CertDir is one domain's certificate directory.
func (l Layout) CertDir(domain string) string {
	return filepath.Join(l.CertsDir(), domain)
}

// NginxDir is the root of all generated nginx configuration.
func (l Layout) NginxDir() string {
	return filepath.Join(l.Root, "nginx")
}

// DomainDir is one domain's nginx configuration directory.
func (l Layout) DomainDir(domain string) string {
	return filepath.Join(l.NginxDir(), domain)
}

// SubdomainDir holds one domain's per-subdomain config files.
func (l Layout) SubdomainDir(domain string) string {
	return filepath.Join(l.DomainDir(domain), "subdomains")
}

// SubdomainFile is the generated config for one subdomain.
func (l Layout) SubdomainFile(domain, label string) string {
	return filepath.Join(l.SubdomainDir(domain), fmt.Sprintf("%s.cfg", label))
}

// DomainFile is the generated per-domain aggregate config.
func (l Layout) DomainFile(domain string) string {
	return filepath.Join(l.DomainDir(domain), "main.cfg")
}

// AggregateFile is the generated top-level config, the single file an
// operator includes from the real nginx configuration.
func (l Layout) AggregateFile() string {
	return filepath.Join(l.NginxDir(), "revprox.cfg")
}

// StateFile records the specification revision of the last completed run.
func (l Layout) StateFile() string {
	return filepath.Join(l.Root, ".revprox-state.yml")
}

// EnsureDir creates path (with parents) if needed. An existing path must be
// a writable directory.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return errors.Newf(errors.CodeStorage, "path exists but is not a directory: %s", path)
		}
		probe, err := os.CreateTemp(path, ".revprox-probe-*")
		if err != nil {
			return errors.Newf(errors.CodeStorage, "directory is not writable: %s", path)
		}
		probe.Close()
		os.Remove(probe.Name())
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrap(errors.CodeStorage, "cannot access path", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrap(errors.CodeStorage, "failed to create directory", err)
	}
	return nil
}

// PrepareDomain creates the certificate and nginx directories for a domain.
func (l Layout) PrepareDomain(domain string) error {
	for _, dir := range []string{l.CertDir(domain), l.DomainDir(domain), l.SubdomainDir(domain)} {
		if err := EnsureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// WriteFileAtomic writes data to path via a temporary file in the same
// directory followed by a rename, so a crash mid-write never leaves a
// truncated artifact behind.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return nil
}
