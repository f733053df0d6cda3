package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/config"
	"github.com/ludo-technologies/pyqc/internal/constants"
)

// ruffConfigFiles are read by ruff from the project root
var ruffConfigFiles = []string{"ruff.toml", ".ruff.toml", "pyproject.toml"}

// RuffLint runs "ruff check" with JSON output
type RuffLint struct {
	tool
	args []string
}

// NewRuffLint creates the ruff linter adapter
func NewRuffLint(cfg config.CheckersConfig, opts Options) *RuffLint {
	rc := cfg.Ruff
	args := []string{"check", "--line-length", strconv.Itoa(cfg.LineLength)}
	if len(rc.Select) > 0 {
		args = append(args, "--select", strings.Join(rc.Select, ","))
	}
	if len(rc.ExtendSelect) > 0 {
		args = append(args, "--extend-select", strings.Join(rc.ExtendSelect, ","))
	}
	if len(rc.Ignore) > 0 {
		args = append(args, "--ignore", strings.Join(rc.Ignore, ","))
	}
	args = append(args, rc.ExtraArgs...)

	return &RuffLint{
		tool: tool{
			name:         constants.CheckerRuffLint,
			executable:   executableOr(rc.Executable, "ruff"),
			timeout:      rc.Timeout(),
			policy:       PolicyWithIssues(rc.IssueExitCodes),
			dir:          opts.Dir,
			capabilities: []domain.Capability{domain.CapabilityLint},
			configFiles:  ruffConfigFiles,
		},
		args: args,
	}
}

// SupportsFix reports that ruff can fix lint issues in place
func (r *RuffLint) SupportsFix() bool { return true }

// Fingerprint identifies the rule selection and the project's ruff settings
func (r *RuffLint) Fingerprint() string {
	return fingerprint(r.name, r.executable, joinArgs(r.args), r.configDigest())
}

// Invoke runs ruff check on one file
func (r *RuffLint) Invoke(ctx context.Context, file string) (domain.RawOutput, error) {
	args := append(append([]string{}, r.args...), "--output-format=json", "--", file)
	return r.run(ctx, file, args)
}

// Fix applies safe fixes in place
func (r *RuffLint) Fix(ctx context.Context, file string) (domain.RawOutput, error) {
	args := append(append([]string{}, r.args...), "--fix", "--", file)
	return r.run(ctx, file, args)
}

type ruffLocation struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

type ruffFix struct {
	Applicability string `json:"applicability"`
}

type ruffDiagnostic struct {
	Code     *string      `json:"code"`
	Message  string       `json:"message"`
	Filename string       `json:"filename"`
	Location ruffLocation `json:"location"`
	Fix      *ruffFix     `json:"fix"`
}

// Parse decodes ruff's JSON diagnostics. Every diagnostic is an error:
// ruff has no severities and exits non-zero for any of them.
func (r *RuffLint) Parse(file string, out domain.RawOutput) domain.ParseResult {
	var result domain.ParseResult
	payload := bytes.TrimSpace(out.Stdout)
	if len(payload) == 0 {
		return result
	}

	var diags []ruffDiagnostic
	if err := json.Unmarshal(payload, &diags); err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: malformed JSON output for %s: %v", r.name, file, err))
		return result
	}

	for _, d := range diags {
		is := domain.Issue{
			File:     file,
			Line:     max(d.Location.Row, 1),
			Severity: domain.SeverityError,
			Message:  d.Message,
			Checker:  r.name,
			Fixable:  d.Fix != nil && d.Fix.Applicability != "unsafe",
		}
		if d.Location.Column > 0 {
			is.Column = domain.IntPtr(d.Location.Column)
		}
		if d.Code != nil {
			is.Code = *d.Code
		} else {
			is.Code = "syntax-error"
		}
		result.Issues = append(result.Issues, is)
	}
	return result
}

// RuffFormat runs "ruff format --check"
type RuffFormat struct {
	tool
	args []string
}

// NewRuffFormat creates the ruff formatter adapter
func NewRuffFormat(cfg config.CheckersConfig, opts Options) *RuffFormat {
	rc := cfg.Ruff
	args := []string{"format", "--line-length", strconv.Itoa(cfg.LineLength)}
	args = append(args, rc.ExtraArgs...)

	return &RuffFormat{
		tool: tool{
			name:         constants.CheckerRuffFormat,
			executable:   executableOr(rc.Executable, "ruff"),
			timeout:      rc.Timeout(),
			policy:       PolicyWithIssues(rc.IssueExitCodes),
			dir:          opts.Dir,
			capabilities: []domain.Capability{domain.CapabilityFormat},
			configFiles:  ruffConfigFiles,
		},
		args: args,
	}
}

// SupportsFix reports that the formatter rewrites files in place
func (r *RuffFormat) SupportsFix() bool { return true }

// Fingerprint identifies the formatter settings
func (r *RuffFormat) Fingerprint() string {
	return fingerprint(r.name, r.executable, joinArgs(r.args), r.configDigest())
}

// Invoke checks formatting of one file without changing it
func (r *RuffFormat) Invoke(ctx context.Context, file string) (domain.RawOutput, error) {
	args := append(append([]string{}, r.args...), "--check", "--", file)
	return r.run(ctx, file, args)
}

// Fix reformats the file in place
func (r *RuffFormat) Fix(ctx context.Context, file string) (domain.RawOutput, error) {
	args := append(append([]string{}, r.args...), "--", file)
	return r.run(ctx, file, args)
}

const wouldReformat = "Would reformat:"

// Parse reads "Would reformat: <path>" lines. A formatting violation is an
// error that the formatter can always fix.
func (r *RuffFormat) Parse(file string, out domain.RawOutput) domain.ParseResult {
	var result domain.ParseResult
	for _, line := range strings.Split(string(out.Stdout)+"\n"+string(out.Stderr), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, wouldReformat):
			result.Issues = append(result.Issues, formatIssue(file, r.name))
		case isFormatSummary(line):
		default:
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: unrecognized output line for %s: %q", r.name, file, line))
		}
	}

	if len(result.Issues) == 0 && r.policy.Classify(out.ExitCode) == ExitIssues {
		result.Issues = append(result.Issues, formatIssue(file, r.name))
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: exit code %d without a reformat line for %s", r.name, out.ExitCode, file))
	}
	return result
}

func formatIssue(file, checker string) domain.Issue {
	return domain.Issue{
		File:     file,
		Line:     1,
		Severity: domain.SeverityError,
		Message:  "File would be reformatted",
		Code:     "format",
		Checker:  checker,
		Fixable:  true,
	}
}

// isFormatSummary matches "1 file would be reformatted", "2 files already formatted", ...
func isFormatSummary(line string) bool {
	return strings.HasSuffix(line, "would be reformatted") ||
		strings.HasSuffix(line, "already formatted") ||
		strings.Contains(line, "would be reformatted, ")
}

func executableOr(exe, fallback string) string {
	if exe == "" {
		return fallback
	}
	return exe
}
