// Package acme performs the certificate exchange with an ACME directory
// (Let's Encrypt by default) over the DNS-01 challenge, which is the only
// challenge type that can validate a wildcard subject.
package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

// Request describes one certificate exchange.
type Request struct {
	// Subject is the certificate subject, e.g. "*.example.com".
	Subject string
	// Email is the ACME account email.
	Email string
	// AccountKeyPEM is the existing account key for renewals; nil requests
	// a fresh account.
	AccountKeyPEM []byte
	// Provider satisfies the DNS-01 challenge.
	Provider challenge.Provider
}

// Result is the PEM material returned by a successful exchange.
type Result struct {
	CertificatePEM []byte
	PrivateKeyPEM  []byte
	AccountKeyPEM  []byte
}

// Exchanger obtains certificates. The certificate manager depends on this
// interface so tests can substitute a fake for the network exchange.
type Exchanger interface {
	Obtain(req Request) (*Result, error)
}

// account implements lego's registration.User.
type account struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (a *account) GetEmail() string                        { return a.email }
func (a *account) GetRegistration() *registration.Resource { return a.registration }
func (a *account) GetPrivateKey() crypto.PrivateKey        { return a.key }

// acmeClient is the slice of *lego.Client the exchange uses, factored out so
// tests can run the full Obtain flow without the network.
type acmeClient interface {
	SetDNS01Provider(p challenge.Provider, opts ...dns01.ChallengeOption) error
	Register(options registration.RegisterOptions) (*registration.Resource, error)
	Obtain(request certificate.ObtainRequest) (*certificate.Resource, error)
}

type legoAdapter struct {
	client *lego.Client
}

func (a *legoAdapter) SetDNS01Provider(p challenge.Provider, opts ...dns01.ChallengeOption) error {
	return a.client.Challenge.SetDNS01Provider(p, opts...)
}

func (a *legoAdapter) Register(options registration.RegisterOptions) (*registration.Resource, error) {
	return a.client.Registration.Register(options)
}

func (a *legoAdapter) Obtain(request certificate.ObtainRequest) (*certificate.Resource, error) {
	return a.client.Certificate.Obtain(request)
}

// Client is the lego-backed Exchanger.
type Client struct {
	directoryURL string
	factory      func(cfg *lego.Config) (acmeClient, error)
}

// NewClient creates a Client against the given ACME directory URL. An empty
// URL selects Let's Encrypt production.
func NewClient(directoryURL string) *Client {
	if directoryURL == "" {
		directoryURL = lego.LEDirectoryProduction
	}
	return &Client{
		directoryURL: directoryURL,
		factory: func(cfg *lego.Config) (acmeClient, error) {
			client, err := lego.NewClient(cfg)
			if err != nil {
				return nil, err
			}
			return &legoAdapter{client: client}, nil
		},
	}
}

// Obtain runs a full exchange: account key setup, registration, DNS-01
// challenge, certificate issuance. Registering with an existing account key
// returns the existing ACME account, so renewals reuse the account without
// extra bookkeeping.
func (c *Client) Obtain(req Request) (*Result, error) {
	var key crypto.PrivateKey
	var err error
	if req.AccountKeyPEM != nil {
		key, err = ParsePrivateKey(req.AccountKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse account key: %w", err)
		}
	} else {
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate account key: %w", err)
		}
	}

	user := &account{email: req.Email, key: key}
	cfg := lego.NewConfig(user)
	cfg.CADirURL = c.directoryURL
	cfg.Certificate.KeyType = certcrypto.RSA2048

	client, err := c.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ACME client: %w", err)
	}

	if err := client.SetDNS01Provider(req.Provider); err != nil {
		return nil, fmt.Errorf("failed to set DNS-01 provider: %w", err)
	}

	reg, err := client.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("failed to register ACME account: %w", err)
	}
	user.registration = reg

	res, err := client.Obtain(certificate.ObtainRequest{
		Domains: []string{req.Subject},
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to obtain certificate for %s: %w", req.Subject, err)
	}
	if len(res.Certificate) == 0 || len(res.PrivateKey) == 0 {
		return nil, fmt.Errorf("empty certificate material for %s", req.Subject)
	}

	accountPEM := req.AccountKeyPEM
	if accountPEM == nil {
		accountPEM, err = EncodePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to encode account key: %w", err)
		}
	}

	return &Result{
		CertificatePEM: res.Certificate,
		PrivateKeyPEM:  res.PrivateKey,
		AccountKeyPEM:  accountPEM,
	}, nil
}
