package storage

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/revprox/revprox/internal/errors"
	"github.com/revprox/revprox/internal/executor"
)

// CurrentRevision identifies the specification checkout's current revision.
// Fetching updates is the job of an external collaborator; this only reads
// what is already on disk.
//
// For a git checkout the revision is the HEAD commit hash. When the config
// directory is not a git repository the revision falls back to a digest of
// the specification document, so plain-file deployments still get change
// detection.
func CurrentRevision(exec executor.CommandExecutor, l Layout) (string, error) {
	configDir := l.ConfigDir()
	if _, err := os.Stat(configDir); err != nil {
		return "", errors.Newf(errors.CodeStorage, "config checkout %s does not exist", configDir)
	}

	if _, err := os.Stat(filepath.Join(configDir, ".git")); err == nil {
		if _, err := exec.LookPath("git"); err == nil {
			out, err := exec.ExecuteIn(configDir, "git", "rev-parse", "HEAD")
			if err == nil {
				if rev := strings.TrimSpace(string(out)); rev != "" {
					return rev, nil
				}
			}
			// Fall through to the digest on a broken checkout.
		}
	}

	data, err := os.ReadFile(l.SpecFile())
	if err != nil {
		return "", errors.Wrap(errors.CodeStorage, "cannot determine specification revision", err)
	}
	return fmt.Sprintf("sha256:%x", sha256.Sum256(data)), nil
}
