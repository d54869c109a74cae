package provider

import (
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/providers/dns/cloudflare"
	"github.com/go-acme/lego/v4/providers/dns/digitalocean"
	"github.com/go-acme/lego/v4/providers/dns/gandiv5"
	"github.com/go-acme/lego/v4/providers/dns/route53"
)

// Builtins returns a registry populated with all built-in provider types.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register("cloudflare", newCloudflare)
	r.Register("digitalocean", newDigitalOcean)
	r.Register("gandiv5", newGandiV5)
	r.Register("route53", newRoute53)
	return r
}

func newCloudflare(params map[string]string) (challenge.Provider, error) {
	cfg := cloudflare.NewDefaultConfig()
	if token, ok := params["auth_token"]; ok && token != "" {
		cfg.AuthToken = token
	} else {
		email, err := requireParam(params, "auth_email")
		if err != nil {
			return nil, err
		}
		key, err := requireParam(params, "auth_key")
		if err != nil {
			return nil, err
		}
		cfg.AuthEmail = email
		cfg.AuthKey = key
	}
	return cloudflare.NewDNSProviderConfig(cfg)
}

func newDigitalOcean(params map[string]string) (challenge.Provider, error) {
	token, err := requireParam(params, "auth_token")
	if err != nil {
		return nil, err
	}
	cfg := digitalocean.NewDefaultConfig()
	cfg.AuthToken = token
	return digitalocean.NewDNSProviderConfig(cfg)
}

func newGandiV5(params map[string]string) (challenge.Provider, error) {
	token, err := requireParam(params, "personal_access_token")
	if err != nil {
		return nil, err
	}
	cfg := gandiv5.NewDefaultConfig()
	cfg.PersonalAccessToken = token
	return gandiv5.NewDNSProviderConfig(cfg)
}

func newRoute53(params map[string]string) (challenge.Provider, error) {
	cfg := route53.NewDefaultConfig()
	// Credentials are optional; the AWS default chain applies when absent.
	cfg.AccessKeyID = params["access_key_id"]
	cfg.SecretAccessKey = params["secret_access_key"]
	cfg.Region = params["region"]
	cfg.HostedZoneID = params["hosted_zone_id"]
	return route53.NewDNSProviderConfig(cfg)
}
