package nginxconf

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// CertPaths locates a domain's certificate artifacts for ssl_certificate
// directives.
type CertPaths struct {
	Certificate string
	PrivateKey  string
}

// GenerationComment is the header line every generated document starts with.
// The timestamp is passed in so rendering stays a pure function; the
// orchestrator uses the run's start time for every document of a run.
func GenerationComment(what, subject string, at time.Time) Comment {
	return Comment(fmt.Sprintf("%s for %s, generated by revprox at %s",
		what, subject, at.Format("15:04 on January 02, 2006")))
}

// Subdomain builds the server configuration for one subdomain.
//
// With SSL enabled and forced, a plaintext listener redirects to the HTTPS
// equivalent of the same host and path. With SSL enabled but not forced, the
// primary server answers on both 80 and 443. With SSL disabled there is a
// single plaintext listener. The proxied location forwards the original
// host, client address, forwarding chain and scheme, supports protocol
// upgrades, and rewrites upstream redirects to the external name.
func Subdomain(domain, label, destination string, useSSL, forceSSL bool, certs CertPaths, at time.Time) *Document {
	full := fmt.Sprintf("%s.%s", label, domain)

	doc := &Document{}
	doc.Add(GenerationComment("NGINX config", full, at))

	if useSSL && forceSSL {
		redirect := &Block{Name: "server"}
		redirect.Add(
			Comment("force_ssl = True"),
			Directive{"listen", "80"},
			Directive{"server_name", full},
			Directive{"return", fmt.Sprintf("301 https://%s$request_uri", full)},
		)
		doc.Add(redirect)
	}

	main := &Block{Name: "server"}
	if !forceSSL {
		main.Add(
			Comment("force_ssl = False"),
			Directive{"listen", "80"},
		)
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
		main.Add(
			Comment("use_ssl = True"),
			Directive{"listen", "443 ssl"},
			Directive{"ssl_certificate", certs.Certificate},
			Directive{"ssl_certificate_key", certs.PrivateKey},
		)
	}

	proxy := &Block{Name: "location /"}
	proxy.Add(
		Directive{"proxy_set_header", "Host $host"},
		Directive{"proxy_set_header", "X-Real-IP $remote_addr"},
		Directive{"proxy_set_header", "X-Forwarded-For $proxy_add_x_forwarded_for"},
		Directive{"proxy_set_header", "X-Forwarded-Proto $scheme"},
		Directive{"proxy_set_header", "Upgrade $http_upgrade"},
		Directive{"proxy_set_header", "Connection $connection_upgrade"},
		Directive{"proxy_pass", destination},
		Directive{"proxy_read_timeout", "90"},
		Directive{"proxy_redirect", fmt.Sprintf("%s %s://%s", destination, scheme, full)},
	)
	main.Add(
		Directive{"server_name", full},
		proxy,
	)
	doc.Add(main)

	return doc
}

// DomainAggregate builds a domain's main.cfg: it includes every generated
// subdomain document by reference and, when forwardOthers is set, a
// catch-all server matching the bare domain and all subdomains that answers
// with a 302 to the target.
func DomainAggregate(domain string, labels []string, subdomainDir, forwardOthers string, useSSL bool, certs CertPaths, at time.Time) *Document {
	doc := &Document{}
	doc.Add(GenerationComment("NGINX config", domain, at))

	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	for _, label := range sorted {
		doc.Add(Directive{"include", filepath.Join(subdomainDir, label+".cfg")})
	}

	if forwardOthers != "" {
		others := &Block{Name: "server"}
		others.Add(
			Comment("Forward remaining (sub)domains to "+forwardOthers),
			Directive{"server_name", fmt.Sprintf("%s *.%s", domain, domain)},
			Directive{"return", fmt.Sprintf("302 %s$request_uri", forwardOthers)},
			Directive{"listen", "80"},
		)
		if useSSL {
			others.Add(
				Comment("use_ssl = True"),
				Directive{"listen", "443 ssl"},
				Directive{"ssl_certificate", certs.Certificate},
				Directive{"ssl_certificate_key", certs.PrivateKey},
			)
		}
		doc.Add(others)
	}

	return doc
}

// TopLevel builds revprox.cfg: the one file an operator includes from the
// real nginx configuration. It defines the shared upgrade/connection map
// used by every proxied location and includes each processed domain's
// aggregate by reference.
func TopLevel(nginxDir string, domains []string, at time.Time) *Document {
	doc := &Document{}
	doc.Add(
		GenerationComment("Main configuration", "NGINX", at),
		Comment("This file needs to be included in your NGINX configuration."),
	)

	upgradeMap := &Block{Name: "map $http_upgrade $connection_upgrade"}
	upgradeMap.Add(
		Directive{"default", "upgrade"},
		Directive{"''", "close"},
	)
	doc.Add(upgradeMap)

	sorted := append([]string(nil), domains...)
	sort.Strings(sorted)
	for _, domain := range sorted {
		doc.Add(Directive{"include", filepath.Join(nginxDir, domain, "main.cfg")})
	}

	return doc
}
