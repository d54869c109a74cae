// Package certstore is the on-disk store of per-domain certificate records.
//
// Each domain owns one directory under the certs root holding the wildcard
// certificate, its private key, and the ACME account key:
//
//	certs/<domain>/certificate.crt
//	certs/<domain>/certificate.key
//	certs/<domain>/account.key
//
// Records are created on first issuance, overwritten in place on renewal,
// and never deleted by this engine. The expiry timestamp is always parsed
// from the stored certificate rather than cached, so certificates rotated
// by an external tool are still judged correctly.
package certstore

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/revprox/revprox/internal/errors"
	"github.com/revprox/revprox/internal/storage"
)

// File names inside a domain's certificate directory.
const (
	CertificateFile = "certificate.crt"
	PrivateKeyFile  = "certificate.key"
	AccountKeyFile  = "account.key"
)

// RenewalWindow is how close to expiry a certificate may get before it is
// renewed.
const RenewalWindow = 14 * 24 * time.Hour

// ErrNotFound reports that a domain has no complete certificate record. It
// carries its own code so code-based matching never confuses a missing
// record with a broken one.
var ErrNotFound = errors.New(errors.CodeNotFound, "no certificate record")

// Record is one domain's stored certificate material.
type Record struct {
	Domain          string // wildcard subject, e.g. *.example.com
	CertificatePath string
	PrivateKeyPath  string
	AccountKeyPath  string
	NotAfter        time.Time
}

// NeedsRenewal reports whether the certificate expires within the renewal
// window relative to now.
func (r *Record) NeedsRenewal(now time.Time) bool {
	return r.NotAfter.Sub(now) < RenewalWindow
}

// Store reads and writes certificate records under a certs root directory.
type Store struct {
	root string
}

// New creates a Store over the given certs root.
func New(root string) *Store {
	return &Store{root: root}
}

// Paths returns the artifact paths for a domain, whether or not a record
// exists yet. The config renderer needs these before first issuance.
func (s *Store) Paths(domain string) (cert, key, account string) {
	dir := filepath.Join(s.root, domain)
	return filepath.Join(dir, CertificateFile),
		filepath.Join(dir, PrivateKeyFile),
		filepath.Join(dir, AccountKeyFile)
}

// Load returns the record for domain, or ErrNotFound when any of the three
// artifacts is missing. The NotAfter timestamp is parsed from the stored
// certificate on every call.
func (s *Store) Load(domain string) (*Record, error) {
	certPath, keyPath, accountPath := s.Paths(domain)
	for _, p := range []string{certPath, keyPath, accountPath} {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, errors.Wrap(errors.CodeCert, "cannot access certificate record", err)
		}
	}

	notAfter, err := parseNotAfter(certPath)
	if err != nil {
		return nil, err
	}

	return &Record{
		Domain:          wildcardSubject(domain),
		CertificatePath: certPath,
		PrivateKeyPath:  keyPath,
		AccountKeyPath:  accountPath,
		NotAfter:        notAfter,
	}, nil
}

// AccountKey returns the stored ACME account key for domain.
func (s *Store) AccountKey(domain string) ([]byte, error) {
	_, _, accountPath := s.Paths(domain)
	data, err := os.ReadFile(accountPath)
	if err != nil {
		return nil, errors.Wrap(errors.CodeCert, "cannot read account key", err)
	}
	return data, nil
}

// Save writes a domain's certificate and private key, and the account key
// when accountKeyPEM is non-nil (first issuance). On renewal the caller
// passes nil and the existing account key stays untouched.
func (s *Store) Save(domain string, certPEM, keyPEM, accountKeyPEM []byte) (*Record, error) {
	if err := storage.EnsureDir(filepath.Join(s.root, domain)); err != nil {
		return nil, err
	}

	certPath, keyPath, accountPath := s.Paths(domain)
	if err := storage.WriteFileAtomic(certPath, certPEM, 0644); err != nil {
		return nil, errors.Wrap(errors.CodeCert, "failed to write certificate", err)
	}
	if err := storage.WriteFileAtomic(keyPath, keyPEM, 0600); err != nil {
		return nil, errors.Wrap(errors.CodeCert, "failed to write private key", err)
	}
	if accountKeyPEM != nil {
		if err := storage.WriteFileAtomic(accountPath, accountKeyPEM, 0600); err != nil {
			return nil, errors.Wrap(errors.CodeCert, "failed to write account key", err)
		}
	}

	return s.Load(domain)
}

// AnyNeedsRenewal scans every stored certificate under the certs root and
// reports whether at least one is inside the renewal window. Used for the
// fast no-op check when no regeneration is pending.
func (s *Store) AnyNeedsRenewal(now time.Time) (bool, error) {
	needs := false
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if needs || d.IsDir() || !strings.HasSuffix(d.Name(), ".crt") {
			return nil
		}
		notAfter, err := parseNotAfter(path)
		if err != nil {
			// An unreadable certificate counts as needing renewal.
			needs = true
			return filepath.SkipAll
		}
		if notAfter.Sub(now) < RenewalWindow {
			needs = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return false, errors.Wrap(errors.CodeCert, "failed to scan certificates", err)
	}
	return needs, nil
}

func parseNotAfter(certPath string) (time.Time, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		return time.Time{}, errors.Wrap(errors.CodeCert, "cannot read certificate", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return time.Time{}, errors.Newf(errors.CodeCert, "no PEM block in %s", certPath)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, errors.Wrap(errors.CodeCert, "cannot parse certificate", err)
	}
	return cert.NotAfter, nil
}

func wildcardSubject(domain string) string {
	return fmt.Sprintf("*.%s", domain)
}
