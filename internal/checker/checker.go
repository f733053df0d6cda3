// Package checker adapts external Python quality tools to the domain.Checker
// interface: building command lines, running them as subordinate processes,
// normalizing exit codes and parsing their output into issues.
package checker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ludo-technologies/pyqc/domain"
)

// tool carries what every adapter shares
type tool struct {
	name         string
	executable   string
	timeout      time.Duration
	policy       ExitCodePolicy
	dir          string
	capabilities []domain.Capability
	// configFiles are the tool's own settings files, relative to dir
	configFiles []string
}

// Name returns the checker name
func (t *tool) Name() string { return t.name }

// Executable returns the command run for this checker
func (t *tool) Executable() string { return t.executable }

// Capabilities returns the checker's capability set
func (t *tool) Capabilities() []domain.Capability {
	return slices.Clone(t.capabilities)
}

// Timeout returns the per-invocation timeout
func (t *tool) Timeout() time.Duration { return t.timeout }

// Policy returns the exit-code policy
func (t *tool) Policy() ExitCodePolicy { return t.policy }

// run executes the tool and turns exit codes outside the policy into
// execution errors for this pair.
func (t *tool) run(ctx context.Context, file string, args []string) (domain.RawOutput, error) {
	out, err := runProcess(ctx, processSpec{
		checker: t.name,
		file:    file,
		name:    t.executable,
		args:    args,
		dir:     t.dir,
		timeout: t.timeout,
	})
	if err != nil {
		return out, err
	}
	if t.policy.Classify(out.ExitCode) == ExitFailure {
		return out, failureFromExit(t.name, file, out)
	}
	return out, nil
}

// fingerprint hashes everything that shapes a checker's output
func fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// configDigest hashes the contents of the tool's settings files that exist
// under dir. Files are read on every call so edits between runs are seen.
func (t *tool) configDigest() string {
	h := sha256.New()
	for _, name := range t.configFiles {
		data, err := os.ReadFile(filepath.Join(t.dir, name))
		if err != nil {
			continue
		}
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Options are the run-context settings shared by all adapters
type Options struct {
	// Dir is the working directory tools run in (the project root)
	Dir string
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
