package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/checker"
)

// CommandTestRunner runs the project's test suite as an external command.
// The suite passes when the command exits 0.
type CommandTestRunner struct {
	argv    []string
	dir     string
	timeout time.Duration
}

// NewCommandTestRunner creates a runner for argv executed in dir
func NewCommandTestRunner(argv []string, dir string, timeout time.Duration) *CommandTestRunner {
	return &CommandTestRunner{argv: slices.Clone(argv), dir: dir, timeout: timeout}
}

// Run executes the suite. paths, when given, are appended to the command so
// the runner can narrow collection.
func (r *CommandTestRunner) Run(ctx context.Context, paths []string) domain.TestRunResult {
	argv := append(slices.Clone(r.argv), paths...)

	start := time.Now()
	out, err := checker.RunCommand(ctx, "tests", argv, r.dir, r.timeout)
	result := domain.TestRunResult{
		Duration: time.Since(start),
		Output:   combinedOutput(out),
	}
	if err != nil {
		if result.Output == "" {
			result.Output = err.Error()
		} else {
			result.Output = err.Error() + "\n" + result.Output
		}
		return result
	}
	result.Success = out.ExitCode == 0
	return result
}

func combinedOutput(out domain.RawOutput) string {
	var sb strings.Builder
	sb.Write(out.Stdout)
	if len(out.Stderr) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.Write(out.Stderr)
	}
	return strings.TrimSpace(sb.String())
}

// NoopTestRunner always passes; used when the test stream is disabled
type NoopTestRunner struct{}

// Run implements domain.TestRunner
func (NoopTestRunner) Run(context.Context, []string) domain.TestRunResult {
	return domain.TestRunResult{Success: true, Output: "tests disabled"}
}
