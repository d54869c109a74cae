package certmgr

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	stderrors "errors"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/go-acme/lego/v4/challenge"

	"github.com/revprox/revprox/internal/acme"
	"github.com/revprox/revprox/internal/certstore"
	"github.com/revprox/revprox/internal/config"
	"github.com/revprox/revprox/internal/errors"
	"github.com/revprox/revprox/internal/provider"
)

type fakeChallengeProvider struct{ name string }

func (f *fakeChallengeProvider) Present(domain, token, keyAuth string) error { return nil }
func (f *fakeChallengeProvider) CleanUp(domain, token, keyAuth string) error { return nil }

// fakeExchanger returns canned certificate material and records requests.
type fakeExchanger struct {
	requests []acme.Request
	err      error
	notAfter time.Time
}

func (f *fakeExchanger) Obtain(req acme.Request) (*acme.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	certPEM, keyPEM := selfSignedPEM(req.Subject, f.notAfter)
	accountPEM := req.AccountKeyPEM
	if accountPEM == nil {
		accountPEM = []byte("fresh-account-key")
	}
	return &acme.Result{
		CertificatePEM: certPEM,
		PrivateKeyPEM:  keyPEM,
		AccountKeyPEM:  accountPEM,
	}, nil
}

func selfSignedPEM(subject string, notAfter time.Time) (certPEM, keyPEM []byte) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: subject},
		DNSNames:     []string{subject},
		NotBefore:    notAfter.Add(-90 * 24 * time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	keyDER, _ := x509.MarshalECPrivateKey(key)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}

func testProviders(t *testing.T, names ...string) *provider.Set {
	t.Helper()
	reg := provider.NewRegistry()
	reg.Register("fake", func(params map[string]string) (challenge.Provider, error) {
		return &fakeChallengeProvider{name: params["name"]}, nil
	})
	specs := make(map[string]*config.ProviderSpec)
	for _, name := range names {
		specs[name] = &config.ProviderSpec{Type: "fake", Config: map[string]string{"name": name}}
	}
	set, err := provider.BuildSet(reg, specs)
	if err != nil {
		t.Fatalf("BuildSet failed: %v", err)
	}
	return set
}

func sslSpec(email string) *config.DomainSpec {
	return &config.DomainSpec{
		SSL: &config.SSLSpec{Enabled: true, Email: email},
	}
}

func TestEnsureIssuance(t *testing.T) {
	now := time.Now()
	store := certstore.New(t.TempDir())
	exchange := &fakeExchanger{notAfter: now.Add(90 * 24 * time.Hour)}
	mgr := New(store, exchange)
	mgr.SetClock(func() time.Time { return now })

	action, err := mgr.Ensure("example.com", sslSpec("admin@example.com"), testProviders(t, "default"))
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if action != ActionIssued {
		t.Errorf("action = %s, want issued", action)
	}

	req := exchange.requests[0]
	if req.Subject != "*.example.com" {
		t.Errorf("subject = %s", req.Subject)
	}
	if req.Email != "admin@example.com" {
		t.Errorf("email = %s", req.Email)
	}
	if req.AccountKeyPEM != nil {
		t.Error("first issuance must not carry an account key")
	}

	// The account key from the exchange must be persisted.
	got, err := store.AccountKey("example.com")
	if err != nil {
		t.Fatalf("AccountKey failed: %v", err)
	}
	if string(got) != "fresh-account-key" {
		t.Errorf("stored account key = %q", got)
	}
}

func TestEnsureNoOpWhenHealthy(t *testing.T) {
	now := time.Now()
	store := certstore.New(t.TempDir())
	certPEM, keyPEM := selfSignedPEM("*.example.com", now.Add(90*24*time.Hour))
	if _, err := store.Save("example.com", certPEM, keyPEM, []byte("account")); err != nil {
		t.Fatal(err)
	}

	exchange := &fakeExchanger{notAfter: now.Add(90 * 24 * time.Hour)}
	mgr := New(store, exchange)
	mgr.SetClock(func() time.Time { return now })

	action, err := mgr.Ensure("example.com", sslSpec("admin@example.com"), testProviders(t, "default"))
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if action != ActionKept {
		t.Errorf("action = %s, want kept", action)
	}
	if len(exchange.requests) != 0 {
		t.Error("healthy certificate must not contact the provider")
	}
}

func TestEnsureRenewal(t *testing.T) {
	now := time.Now()
	store := certstore.New(t.TempDir())
	certPEM, keyPEM := selfSignedPEM("*.example.com", now.Add(3*24*time.Hour))
	if _, err := store.Save("example.com", certPEM, keyPEM, []byte("existing-account-key")); err != nil {
		t.Fatal(err)
	}

	exchange := &fakeExchanger{notAfter: now.Add(90 * 24 * time.Hour)}
	mgr := New(store, exchange)
	mgr.SetClock(func() time.Time { return now })

	action, err := mgr.Ensure("example.com", sslSpec("admin@example.com"), testProviders(t, "default"))
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if action != ActionRenewed {
		t.Errorf("action = %s, want renewed", action)
	}

	if string(exchange.requests[0].AccountKeyPEM) != "existing-account-key" {
		t.Error("renewal must reuse the stored account key")
	}
	got, _ := store.AccountKey("example.com")
	if string(got) != "existing-account-key" {
		t.Error("account key must stay unchanged after renewal")
	}

	// The renewed certificate replaced the near-expiry one.
	rec, err := store.Load("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if rec.NeedsRenewal(now) {
		t.Error("renewed certificate still inside renewal window")
	}
}

func TestEnsureCorruptRecordFailsDomain(t *testing.T) {
	now := time.Now()
	store := certstore.New(t.TempDir())
	certPEM, keyPEM := selfSignedPEM("*.example.com", now.Add(90*24*time.Hour))
	if _, err := store.Save("example.com", certPEM, keyPEM, []byte("existing-account-key")); err != nil {
		t.Fatal(err)
	}
	certPath, _, _ := store.Paths("example.com")
	if err := os.WriteFile(certPath, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	exchange := &fakeExchanger{notAfter: now.Add(90 * 24 * time.Hour)}
	mgr := New(store, exchange)
	mgr.SetClock(func() time.Time { return now })

	_, err := mgr.Ensure("example.com", sslSpec("admin@example.com"), testProviders(t, "default"))
	if err == nil {
		t.Fatal("corrupt certificate record must not be treated as first issuance")
	}
	if errors.CodeOf(err) != errors.CodeCert {
		t.Errorf("code = %s, want CERT", errors.CodeOf(err))
	}
	if errors.IsFatal(err) {
		t.Error("broken record must stay domain-isolated")
	}
	if len(exchange.requests) != 0 {
		t.Error("must not contact the provider for a broken record")
	}
	got, err := store.AccountKey("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "existing-account-key" {
		t.Error("existing account key must survive a broken record")
	}
}

func TestEnsureProviderOverride(t *testing.T) {
	now := time.Now()
	store := certstore.New(t.TempDir())
	exchange := &fakeExchanger{notAfter: now.Add(90 * 24 * time.Hour)}
	mgr := New(store, exchange)
	mgr.SetClock(func() time.Time { return now })

	t.Run("resolvable override", func(t *testing.T) {
		spec := sslSpec("admin@example.com")
		spec.DNS = "special"
		_, err := mgr.Ensure("example.com", spec, testProviders(t, "default", "special"))
		if err != nil {
			t.Fatalf("Ensure failed: %v", err)
		}
		p, ok := exchange.requests[len(exchange.requests)-1].Provider.(*fakeChallengeProvider)
		if !ok || p.name != "special" {
			t.Errorf("exchange used provider %+v, want special", p)
		}
	})

	t.Run("unresolvable override", func(t *testing.T) {
		spec := sslSpec("admin@example.com")
		spec.DNS = "ghost"
		_, err := mgr.Ensure("broken.com", spec, testProviders(t, "default"))
		if err == nil {
			t.Fatal("expected error")
		}
		if errors.CodeOf(err) != errors.CodeProvider {
			t.Errorf("code = %s, want PROVIDER", errors.CodeOf(err))
		}
		if errors.IsFatal(err) {
			t.Error("per-domain provider failure must not be fatal")
		}
	})
}

func TestEnsureExchangeFailure(t *testing.T) {
	store := certstore.New(t.TempDir())
	exchange := &fakeExchanger{err: stderrors.New("dns propagation timeout")}
	mgr := New(store, exchange)

	_, err := mgr.Ensure("example.com", sslSpec("admin@example.com"), testProviders(t, "default"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.CodeOf(err) != errors.CodeCert {
		t.Errorf("code = %s, want CERT", errors.CodeOf(err))
	}
	if errors.IsFatal(err) {
		t.Error("exchange failure must not be fatal")
	}
}
