package checker

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/config"
	"github.com/ludo-technologies/pyqc/internal/constants"
)

// mypyLine matches "file:line[:col]: severity: message  [code]"
var mypyLine = regexp.MustCompile(
	`^(?P<file>.+?):(?P<line>\d+):(?:(?P<col>\d+):)?\s*(?P<severity>error|warning|note):\s*(?P<message>.*?)(?:\s+\[(?P<code>[^\]]+)\])?$`)

// mypyConfigFiles are read by mypy from the project root
var mypyConfigFiles = []string{"mypy.ini", ".mypy.ini", "pyproject.toml", "setup.cfg"}

// Mypy runs the mypy type checker
type Mypy struct {
	tool
	args []string
}

// NewMypy creates the mypy adapter
func NewMypy(cfg config.CheckersConfig, opts Options) *Mypy {
	mc := cfg.Mypy
	args := []string{"--show-error-codes", "--show-column-numbers", "--no-error-summary", "--no-color-output"}
	if mc.Strict {
		args = append(args, "--strict")
	}
	if mc.IgnoreMissingImports {
		args = append(args, "--ignore-missing-imports")
	}
	args = append(args, mc.ExtraArgs...)

	return &Mypy{
		tool: tool{
			name:         constants.CheckerMypy,
			executable:   executableOr(mc.Executable, "mypy"),
			timeout:      mc.Timeout(),
			policy:       PolicyWithIssues(mc.IssueExitCodes),
			dir:          opts.Dir,
			capabilities: []domain.Capability{domain.CapabilityTypeCheck},
			configFiles:  mypyConfigFiles,
		},
		args: args,
	}
}

// SupportsFix is false: mypy only reports
func (m *Mypy) SupportsFix() bool { return false }

// Fingerprint identifies the strictness flags and the project's mypy
// settings. Modules the file imports are not part of it.
func (m *Mypy) Fingerprint() string {
	return fingerprint(m.name, m.executable, joinArgs(m.args), m.configDigest())
}

// Invoke type-checks one file
func (m *Mypy) Invoke(ctx context.Context, file string) (domain.RawOutput, error) {
	args := append(append([]string{}, m.args...), "--", file)
	return m.run(ctx, file, args)
}

// Fix is unsupported
func (m *Mypy) Fix(_ context.Context, file string) (domain.RawOutput, error) {
	return domain.RawOutput{}, domain.NewExecutionError(m.name, file, -1, "autofix not supported", nil)
}

// Parse reads mypy's line output. Diagnostics reported against other files
// (followed imports) are dropped so each pair only carries its own file.
func (m *Mypy) Parse(file string, out domain.RawOutput) domain.ParseResult {
	var result domain.ParseResult
	names := mypyLine.SubexpNames()

	for _, raw := range strings.Split(string(out.Stdout), "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" || isMypySummary(line) {
			continue
		}

		match := mypyLine.FindStringSubmatch(line)
		if match == nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: unrecognized output line for %s: %q", m.name, file, line))
			continue
		}
		groups := make(map[string]string, len(names))
		for i, n := range names {
			if n != "" {
				groups[n] = match[i]
			}
		}

		if !samePath(groups["file"], file) {
			continue
		}

		lineNo, _ := strconv.Atoi(groups["line"])
		is := domain.Issue{
			File:     file,
			Line:     max(lineNo, 1),
			Severity: domain.ParseSeverity(groups["severity"]),
			Message:  strings.TrimSpace(groups["message"]),
			Code:     groups["code"],
			Checker:  m.name,
		}
		if groups["col"] != "" {
			if col, err := strconv.Atoi(groups["col"]); err == nil {
				is.Column = domain.IntPtr(col)
			}
		}
		result.Issues = append(result.Issues, is)
	}
	return result
}

func isMypySummary(line string) bool {
	return strings.HasPrefix(line, "Success: no issues found") ||
		strings.HasPrefix(line, "Found ") && strings.Contains(line, " error")
}

// samePath compares a tool-reported path with the requested one, tolerating
// relative versus absolute spellings.
func samePath(reported, requested string) bool {
	a, b := filepath.Clean(reported), filepath.Clean(requested)
	if a == b {
		return true
	}
	if filepath.IsAbs(a) != filepath.IsAbs(b) {
		return strings.HasSuffix(a, string(filepath.Separator)+b) ||
			strings.HasSuffix(b, string(filepath.Separator)+a)
	}
	return false
}
