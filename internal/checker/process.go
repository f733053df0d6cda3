package checker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"slices"
	"syscall"
	"time"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/constants"
	"github.com/ludo-technologies/pyqc/internal/hooklog"
)

// ExitClass is how an adapter interprets a tool's exit code
type ExitClass int

const (
	ExitClean ExitClass = iota
	ExitIssues
	ExitFailure
)

// ExitCodePolicy maps tool exit codes onto clean / issues / failure.
// Codes in neither list are failures for the pair.
type ExitCodePolicy struct {
	Clean  []int
	Issues []int
}

// DefaultExitCodePolicy is the common 0 = clean, 1 = issues convention
func DefaultExitCodePolicy() ExitCodePolicy {
	return ExitCodePolicy{Clean: []int{0}, Issues: []int{1}}
}

// PolicyWithIssues returns the default policy with the issue codes replaced
func PolicyWithIssues(codes []int) ExitCodePolicy {
	p := DefaultExitCodePolicy()
	if len(codes) > 0 {
		p.Issues = slices.Clone(codes)
	}
	return p
}

// Classify interprets an exit code
func (p ExitCodePolicy) Classify(code int) ExitClass {
	switch {
	case slices.Contains(p.Clean, code):
		return ExitClean
	case slices.Contains(p.Issues, code):
		return ExitIssues
	default:
		return ExitFailure
	}
}

// GracePeriod is how long a timed-out tool gets between SIGINT and SIGKILL
var GracePeriod = constants.KillGracePeriod

// processSpec describes one subordinate process
type processSpec struct {
	checker string
	file    string
	name    string
	args    []string
	dir     string
	timeout time.Duration
}

// runProcess starts the tool in its own process group and waits for it or
// for the timeout. Any exit status is returned in RawOutput; errors are
// reserved for runs that did not complete normally.
func runProcess(ctx context.Context, spec processSpec) (domain.RawOutput, error) {
	timeout := spec.timeout
	if timeout <= 0 {
		timeout = constants.DefaultToolTimeout
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(spec.name, spec.args...)
	cmd.Dir = spec.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Orphaned grandchildren may keep the pipes open after a kill
	cmd.WaitDelay = GracePeriod

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return domain.RawOutput{}, domain.NewToolUnavailableError(spec.checker, spec.name, err)
		}
		return domain.RawOutput{}, domain.NewExecutionError(spec.checker, spec.file, -1, "failed to start", err)
	}

	pgid := cmd.Process.Pid
	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var runErr error
	var timedOut, cancelled bool
	select {
	case runErr = <-waitDone:
	case <-timer.C:
		timedOut = true
		runErr = terminateGroup(pgid, waitDone)
	case <-ctx.Done():
		cancelled = true
		runErr = terminateGroup(pgid, waitDone)
	}

	out := domain.RawOutput{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	switch {
	case timedOut:
		return out, domain.NewTimeoutError(spec.checker, spec.file, timeout)
	case cancelled:
		return out, domain.NewExecutionError(spec.checker, spec.file, -1, "cancelled", ctx.Err())
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return out, domain.NewExecutionError(spec.checker, spec.file, -1, "wait failed", runErr)
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return out, domain.NewExecutionError(spec.checker, spec.file, -1,
				"terminated by "+status.Signal().String(), nil)
		}
		out.ExitCode = exitErr.ExitCode()
	}
	return out, nil
}

// RunCommand runs an arbitrary command with the same process-group and
// timeout handling as the checkers. label names the command in errors.
func RunCommand(ctx context.Context, label string, argv []string, dir string, timeout time.Duration) (domain.RawOutput, error) {
	if len(argv) == 0 {
		return domain.RawOutput{}, domain.NewConfigError("", label+": empty command", nil)
	}
	return runProcess(ctx, processSpec{
		checker: label,
		name:    argv[0],
		args:    argv[1:],
		dir:     dir,
		timeout: timeout,
	})
}

// terminateGroup sends SIGINT to the process group and, if the leader has
// not exited within GracePeriod, SIGKILL. Returns the leader's wait result.
func terminateGroup(pgid int, waitDone <-chan error) error {
	_ = syscall.Kill(-pgid, syscall.SIGINT)
	select {
	case err := <-waitDone:
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return err
	case <-time.After(GracePeriod):
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	return <-waitDone
}

// failureDetailBytes caps the tool output quoted in an execution error
const failureDetailBytes = 300

// failureFromExit builds the execution error for an exit code outside the policy
func failureFromExit(checker, file string, out domain.RawOutput) *domain.QualityError {
	detail := hooklog.Excerpt(string(out.Stderr), failureDetailBytes)
	if detail == "" {
		detail = hooklog.Excerpt(string(out.Stdout), failureDetailBytes)
	}
	msg := fmt.Sprintf("exit code %d", out.ExitCode)
	if detail != "" {
		msg += ": " + detail
	}
	return domain.NewExecutionError(checker, file, out.ExitCode, msg, nil)
}
