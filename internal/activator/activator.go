// Package activator validates the assembled nginx configuration and signals
// the running proxy to pick it up.
package activator

import (
	"strings"

	"github.com/revprox/revprox/internal/errors"
	"github.com/revprox/revprox/internal/executor"
	"github.com/revprox/revprox/internal/logger"
)

// Activator drives the external nginx binary and the service supervisor.
type Activator struct {
	exec executor.CommandExecutor
}

// New creates an Activator over the given executor.
func New(exec executor.CommandExecutor) *Activator {
	return &Activator{exec: exec}
}

// Validate runs "nginx -t" against the host configuration. An invalid
// configuration is fatal: the operator must fix it manually, and the
// previous working configuration stays in place. When nginx is not on PATH
// validation is skipped.
func (a *Activator) Validate() error {
	nginx, err := a.exec.LookPath("nginx")
	if err != nil {
		logger.Warn("nginx binary not found, skipping configuration validation")
		return nil
	}

	out, err := a.exec.Execute(nginx, "-t")
	if err != nil {
		return errors.Fatal(errors.Newf(errors.CodeActivate,
			"NGINX config INVALID - please fix this manually: %s", strings.TrimSpace(string(out))))
	}
	return nil
}

// Reactivate restarts nginx so it serves the regenerated configuration and
// renewed certificates. It tries the BSD-style service manager first, then
// systemctl. Failure is advisory: the run's artifacts are already on disk
// and the operator can restart by hand.
func (a *Activator) Reactivate() error {
	if service, err := a.exec.LookPath("service"); err == nil {
		if out, err := a.exec.Execute(service, "nginx", "restart"); err == nil {
			return nil
		} else {
			logger.Debug("service nginx restart failed: %s", strings.TrimSpace(string(out)))
		}
	}

	if systemctl, err := a.exec.LookPath("systemctl"); err == nil {
		if out, err := a.exec.Execute(systemctl, "restart", "nginx"); err == nil {
			return nil
		} else {
			logger.Debug("systemctl restart nginx failed: %s", strings.TrimSpace(string(out)))
		}
	}

	return errors.New(errors.CodeActivate, "no service manager could restart nginx - please restart NGINX manually")
}
