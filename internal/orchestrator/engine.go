// Package orchestrator drives one revprox run: it decides whether artifacts
// must be regenerated, iterates domains with strict failure isolation,
// invokes the certificate manager and the config renderer, and finally
// validates and reactivates the proxy.
package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/revprox/revprox/internal/activator"
	"github.com/revprox/revprox/internal/acme"
	"github.com/revprox/revprox/internal/certmgr"
	"github.com/revprox/revprox/internal/certstore"
	"github.com/revprox/revprox/internal/config"
	"github.com/revprox/revprox/internal/errors"
	"github.com/revprox/revprox/internal/executor"
	"github.com/revprox/revprox/internal/logger"
	"github.com/revprox/revprox/internal/nginxconf"
	"github.com/revprox/revprox/internal/output"
	"github.com/revprox/revprox/internal/provider"
	"github.com/revprox/revprox/internal/storage"
)

// RunState is the ephemeral state of one invocation.
type RunState struct {
	PreviousRevision string `json:"previous_revision"`
	CurrentRevision  string `json:"current_revision"`
	MustRegenerate   bool   `json:"must_regenerate"`
	MustReactivate   bool   `json:"must_reactivate"`
}

// DomainStatus classifies the outcome of one domain's processing.
type DomainStatus string

// Domain outcomes. Every status except StatusProcessed leaves the domain
// out of the regenerated top-level aggregate.
const (
	StatusProcessed       DomainStatus = "processed"
	StatusSkippedNoEmail  DomainStatus = "skipped-no-email"
	StatusSkippedProvider DomainStatus = "skipped-provider"
	StatusSkippedCert     DomainStatus = "skipped-cert-failure"
	StatusFailed          DomainStatus = "failed"
)

// DomainResult is the typed outcome of one domain's processing.
type DomainResult struct {
	Domain     string       `json:"domain"`
	Status     DomainStatus `json:"status"`
	CertAction string       `json:"cert_action,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

// RunReport summarizes a completed (or no-op) run.
type RunReport struct {
	State           RunState       `json:"state"`
	NoOp            bool           `json:"noop"`
	Regenerated     bool           `json:"regenerated"`
	Validated       bool           `json:"validated"`
	Reactivated     bool           `json:"reactivated"`
	ReactivateError string         `json:"reactivate_error,omitempty"`
	Domains         []DomainResult `json:"domains"`
}

// Engine is the top-level driver. All collaborators are exported fields so
// tests can substitute fakes; New wires the production set.
type Engine struct {
	Layout    storage.Layout
	Exec      executor.CommandExecutor
	Registry  *provider.Registry
	Store     *certstore.Store
	Certs     *certmgr.Manager
	Activator *activator.Activator
	LoadSpec  func(path string) (*config.Spec, error)
	Now       func() time.Time
	Force     bool
}

// New creates an Engine with production collaborators over the given
// storage layout.
func New(layout storage.Layout, force bool) *Engine {
	exec := executor.NewSystemExecutor()
	store := certstore.New(layout.CertsDir())
	return &Engine{
		Layout:    layout,
		Exec:      exec,
		Registry:  provider.Builtins(),
		Store:     store,
		Certs:     certmgr.New(store, acme.NewClient(os.Getenv("REVPROX_ACME_DIRECTORY"))),
		Activator: activator.New(exec),
		LoadSpec:  config.Load,
		Now:       time.Now,
		Force:     force,
	}
}

// Run executes one full pass. Fatal errors abort with a non-nil error;
// per-domain failures are isolated and land in the report instead.
func (e *Engine) Run() (*RunReport, error) {
	now := e.Now()

	state, err := e.Layout.LoadState()
	if err != nil {
		return nil, errors.Fatal(err)
	}
	current, err := storage.CurrentRevision(e.Exec, e.Layout)
	if err != nil {
		return nil, errors.Fatal(err)
	}

	rs := RunState{
		PreviousRevision: state.Revision,
		CurrentRevision:  current,
		MustRegenerate:   e.Force || current != state.Revision,
	}
	report := &RunReport{State: rs}

	if !e.Force && state.Revision != "" && current != state.Revision {
		output.Info("Detected specification change. Updated from %s to %s.", state.Revision, current)
	}

	// Without pending regeneration, a quick certificate scan decides
	// whether there is anything to do at all.
	if !rs.MustRegenerate {
		need, err := e.Store.AnyNeedsRenewal(now)
		if err != nil {
			return nil, errors.Fatal(err)
		}
		if !need {
			report.NoOp = true
			logger.Debug("revision unchanged and no certificate near expiry, nothing to do")
			return report, nil
		}
	}

	spec, err := e.LoadSpec(e.Layout.SpecFile())
	if err != nil {
		return nil, errors.Fatal(err)
	}

	providers, err := provider.BuildSet(e.Registry, spec.DNS)
	if err != nil {
		return nil, err // BuildSet marks its errors fatal
	}
	for name, ferr := range providers.Failures() {
		output.Warn("Init DNS provider failed for %s: %v", name, ferr)
	}

	for _, name := range spec.DomainNames() {
		result := e.processDomain(name, spec.Domains[name], providers, &report.State, now)
		report.Domains = append(report.Domains, result)
		switch result.Status {
		case StatusProcessed:
			logger.Debug("domain %s processed (%s)", name, result.CertAction)
		case StatusSkippedNoEmail:
			output.Warn("If you wish to use SSL for domain %s, you MUST configure an \"email\".", output.Domain(name))
		default:
			output.Error("Processing failed for domain %s: %s", output.Domain(name), result.Reason)
		}
	}

	if report.State.MustRegenerate {
		if err := e.writeAggregate(report, now); err != nil {
			return report, err
		}
		report.Regenerated = true
		if err := e.Layout.SaveState(&storage.State{Revision: current, UpdatedAt: now}); err != nil {
			// Worst case the next run regenerates once more.
			logger.Warn("failed to record run state: %v", err)
		}
	}

	if err := e.Activator.Validate(); err != nil {
		return report, err
	}
	report.Validated = true

	if report.State.MustRegenerate || report.State.MustReactivate {
		if err := e.Activator.Reactivate(); err != nil {
			report.ReactivateError = err.Error()
			output.Error("Restart NGINX: FAILED - please restart NGINX manually!")
		} else {
			report.Reactivated = true
			output.Success("Restart NGINX: SUCCESS")
		}
	}

	return report, nil
}

// processDomain handles one domain end to end. Every failure, including a
// panic from a collaborator, is converted into a DomainResult so one broken
// domain cannot abort the run.
func (e *Engine) processDomain(name string, spec *config.DomainSpec, providers *provider.Set, rs *RunState, now time.Time) (result DomainResult) {
	result = DomainResult{Domain: name, Status: StatusProcessed}
	defer func() {
		if r := recover(); r != nil {
			result.Status = StatusFailed
			result.Reason = fmt.Sprintf("unexpected failure: %v", r)
		}
	}()

	if err := e.Layout.PrepareDomain(name); err != nil {
		result.Status = StatusFailed
		result.Reason = err.Error()
		return result
	}

	if spec.UseSSL() {
		if spec.MissingEmail() {
			result.Status = StatusSkippedNoEmail
			result.Reason = "ssl enabled but no email configured"
			return result
		}
		action, err := e.Certs.Ensure(name, spec, providers)
		if err != nil {
			if errors.CodeOf(err) == errors.CodeProvider {
				result.Status = StatusSkippedProvider
			} else {
				result.Status = StatusSkippedCert
			}
			result.Reason = err.Error()
			return result
		}
		result.CertAction = string(action)
		if action != certmgr.ActionKept {
			rs.MustReactivate = true
		}
	}

	if rs.MustRegenerate {
		if err := e.renderAndCommit(name, spec, now); err != nil {
			result.Status = StatusFailed
			result.Reason = err.Error()
			return result
		}
	}

	return result
}

// renderAndCommit renders every document of one domain in memory first and
// only then commits them, each through an atomic rename, so a failing
// domain leaves no partial output behind.
func (e *Engine) renderAndCommit(name string, spec *config.DomainSpec, now time.Time) error {
	certFile, keyFile, _ := e.Store.Paths(name)
	certs := nginxconf.CertPaths{Certificate: certFile, PrivateKey: keyFile}
	labels := spec.SubdomainLabels()

	type artifact struct {
		path string
		data []byte
	}
	artifacts := make([]artifact, 0, len(labels)+1)

	for _, label := range labels {
		doc := nginxconf.Subdomain(name, label, spec.Subdomains[label], spec.UseSSL(), spec.ForceSSL(), certs, now)
		artifacts = append(artifacts, artifact{e.Layout.SubdomainFile(name, label), doc.Bytes()})
	}
	aggregate := nginxconf.DomainAggregate(name, labels, e.Layout.SubdomainDir(name), spec.ForwardOthers, spec.UseSSL(), certs, now)
	artifacts = append(artifacts, artifact{e.Layout.DomainFile(name), aggregate.Bytes()})

	for _, a := range artifacts {
		if err := storage.WriteFileAtomic(a.path, a.data, 0644); err != nil {
			return errors.Domain(errors.CodeRender, name, "failed to commit configuration", err)
		}
	}
	return nil
}

// writeAggregate commits the top-level document referencing every
// successfully processed domain.
func (e *Engine) writeAggregate(report *RunReport, now time.Time) error {
	processed := make([]string, 0, len(report.Domains))
	for _, r := range report.Domains {
		if r.Status == StatusProcessed {
			processed = append(processed, r.Domain)
		}
	}

	if err := storage.EnsureDir(e.Layout.NginxDir()); err != nil {
		return errors.Fatal(err)
	}
	doc := nginxconf.TopLevel(e.Layout.NginxDir(), processed, now)
	if err := storage.WriteFileAtomic(e.Layout.AggregateFile(), doc.Bytes(), 0644); err != nil {
		return errors.Fatal(errors.Wrap(errors.CodeRender, "failed to write top-level configuration", err))
	}
	return nil
}
