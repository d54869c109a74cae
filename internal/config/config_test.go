package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/revprox/revprox/internal/errors"
)

const sampleSpec = `
dns:
  default:
    type: cloudflare
    config:
      auth_token: token-123
  backup:
    type: digitalocean
    config:
      auth_token: token-456
domains:
  example.com:
    subdomains:
      app: http://127.0.0.1:8080
      api: http://127.0.0.1:9090
    ssl:
      enabled: true
      forced: true
      email: admin@example.com
    forward_others: https://parking.example.com
  plain.org:
    subdomains:
      www: http://127.0.0.1:3000
`

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write spec: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	spec, err := Load(writeSpec(t, sampleSpec))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	t.Run("providers", func(t *testing.T) {
		if len(spec.DNS) != 2 {
			t.Fatalf("expected 2 providers, got %d", len(spec.DNS))
		}
		p := spec.DNS["default"]
		if p.Type != "cloudflare" {
			t.Errorf("type = %s, want cloudflare", p.Type)
		}
		if p.Config["auth_token"] != "token-123" {
			t.Errorf("auth_token = %s", p.Config["auth_token"])
		}
	})

	t.Run("domains", func(t *testing.T) {
		d := spec.Domains["example.com"]
		if d == nil {
			t.Fatal("example.com missing")
		}
		if !d.UseSSL() || !d.ForceSSL() {
			t.Error("expected ssl enabled and forced")
		}
		if d.MissingEmail() {
			t.Error("email is present, MissingEmail should be false")
		}
		if d.ForwardOthers != "https://parking.example.com" {
			t.Errorf("forward_others = %s", d.ForwardOthers)
		}
		if got := d.SubdomainLabels(); len(got) != 2 || got[0] != "api" || got[1] != "app" {
			t.Errorf("SubdomainLabels = %v, want sorted [api app]", got)
		}
	})

	t.Run("ssl disabled domain", func(t *testing.T) {
		d := spec.Domains["plain.org"]
		if d.UseSSL() || d.ForceSSL() || d.MissingEmail() {
			t.Error("plain.org should have no ssl policy at all")
		}
	})

	t.Run("sorted names", func(t *testing.T) {
		names := spec.DomainNames()
		if len(names) != 2 || names[0] != "example.com" || names[1] != "plain.org" {
			t.Errorf("DomainNames = %v", names)
		}
	})
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		if err == nil {
			t.Fatal("expected error")
		}
		if errors.CodeOf(err) != errors.CodeConfig {
			t.Errorf("code = %s, want CONFIG", errors.CodeOf(err))
		}
	})

	t.Run("unparsable yaml", func(t *testing.T) {
		_, err := Load(writeSpec(t, "domains: [\n"))
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("provider without type", func(t *testing.T) {
		_, err := Load(writeSpec(t, "dns:\n  default:\n    config: {}\n"))
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid domain name", func(t *testing.T) {
		_, err := Load(writeSpec(t, "domains:\n  \"bad domain.com\":\n    subdomains: {}\n"))
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestMissingEmail(t *testing.T) {
	spec, err := Load(writeSpec(t, `
domains:
  nomail.com:
    subdomains:
      www: http://127.0.0.1:8080
    ssl:
      enabled: true
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !spec.Domains["nomail.com"].MissingEmail() {
		t.Error("expected MissingEmail for ssl without email")
	}
}

func TestValidateDomain(t *testing.T) {
	valid := []string{"example.com", "sub.example.co.uk", "xn--nxasmq6b.com"}
	for _, d := range valid {
		if err := ValidateDomain(d); err != nil {
			t.Errorf("ValidateDomain(%q) = %v, want nil", d, err)
		}
	}

	invalid := []string{"", "has space.com", "slash/com", "-lead.com", "trail.com.", "back\\slash"}
	for _, d := range invalid {
		if err := ValidateDomain(d); err == nil {
			t.Errorf("ValidateDomain(%q) = nil, want error", d)
		}
	}
}
