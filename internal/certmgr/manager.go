// Package certmgr decides, per domain, whether a certificate must be
// issued, renewed, or left alone, and drives the ACME exchange accordingly.
package certmgr

import (
	"time"

	"github.com/revprox/revprox/internal/acme"
	"github.com/revprox/revprox/internal/certstore"
	"github.com/revprox/revprox/internal/config"
	"github.com/revprox/revprox/internal/errors"
	"github.com/revprox/revprox/internal/logger"
	"github.com/revprox/revprox/internal/output"
	"github.com/revprox/revprox/internal/provider"
)

// Action reports what Ensure did for a domain.
type Action string

// The three possible outcomes of a successful Ensure.
const (
	ActionIssued  Action = "issued"  // no prior record, fresh certificate obtained
	ActionRenewed Action = "renewed" // record existed and was near expiry
	ActionKept    Action = "kept"    // record exists and is healthy, nothing done
)

// Manager orchestrates certificate issuance and renewal.
type Manager struct {
	store    *certstore.Store
	exchange acme.Exchanger
	now      func() time.Time
}

// New creates a Manager over the given store and exchanger.
func New(store *certstore.Store, exchange acme.Exchanger) *Manager {
	return &Manager{
		store:    store,
		exchange: exchange,
		now:      time.Now,
	}
}

// SetClock overrides the manager's time source. For testing.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Ensure makes certain the domain has a healthy wildcard certificate.
//
// The effective provider is the domain's override when one is named, else
// the run default; an unresolvable override fails this domain only. A
// healthy existing certificate returns ActionKept without contacting the
// provider. Every failure comes back as a domain-scoped error for the
// orchestrator to isolate; nothing here aborts the run.
func (m *Manager) Ensure(domain string, spec *config.DomainSpec, providers *provider.Set) (Action, error) {
	dnsProvider := providers.Default()
	if spec.DNS != "" {
		override, ok := providers.Get(spec.DNS)
		if !ok {
			return "", errors.Domain(errors.CodeProvider, domain,
				"configured DNS provider "+spec.DNS+" is not found or not properly configured", nil)
		}
		dnsProvider = override
	}

	subject := "*." + domain

	var accountKey []byte
	action := ActionIssued
	record, err := m.store.Load(domain)
	switch {
	case err == nil:
		if !record.NeedsRenewal(m.now()) {
			logger.Debug("certificate for %s valid until %s, nothing to do", subject, record.NotAfter)
			return ActionKept, nil
		}
		accountKey, err = m.store.AccountKey(domain)
		if err != nil {
			return "", errors.Domain(errors.CodeCert, domain, "cannot read account key", err)
		}
		action = ActionRenewed
	case errors.Is(err, certstore.ErrNotFound):
		// First issuance, fresh account.
	default:
		return "", errors.Domain(errors.CodeCert, domain, "cannot inspect certificate record", err)
	}

	if action == ActionRenewed {
		output.Info("Renewing certificate for %s...", output.Domain(subject))
	} else {
		output.Info("Requesting new certificate for %s...", output.Domain(subject))
	}

	res, err := m.exchange.Obtain(acme.Request{
		Subject:       subject,
		Email:         spec.SSL.Email,
		AccountKeyPEM: accountKey,
		Provider:      dnsProvider,
	})
	if err != nil {
		return "", errors.Domain(errors.CodeCert, domain, "certificate exchange failed", err)
	}

	// On renewal the account key on disk stays untouched.
	var saveAccountKey []byte
	if action == ActionIssued {
		saveAccountKey = res.AccountKeyPEM
	}
	if _, err := m.store.Save(domain, res.CertificatePEM, res.PrivateKeyPEM, saveAccountKey); err != nil {
		return "", errors.Domain(errors.CodeCert, domain, "failed to persist certificate", err)
	}

	return action, nil
}
