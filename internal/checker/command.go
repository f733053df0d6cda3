package checker

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/config"
)

// Command adapts any tool that prints one diagnostic per line. The line
// shape is a regular expression with named groups.
type Command struct {
	tool
	args            []string
	fixArgs         []string
	pattern         *regexp.Regexp
	defaultSeverity domain.Severity
}

// NewCommand creates a generic adapter from configuration
func NewCommand(cc config.CommandCheckerConfig, opts Options) (*Command, error) {
	pattern, err := regexp.Compile(cc.Pattern)
	if err != nil {
		return nil, domain.NewConfigError("", fmt.Sprintf("custom checker %q: invalid pattern", cc.Name), err)
	}
	for _, required := range []string{"line", "message"} {
		if pattern.SubexpIndex(required) < 0 {
			return nil, domain.NewConfigError("",
				fmt.Sprintf("custom checker %q: pattern needs a named group %q", cc.Name, required), nil)
		}
	}

	caps := make([]domain.Capability, 0, len(cc.Capabilities))
	for _, c := range cc.Capabilities {
		caps = append(caps, domain.Capability(c))
	}
	if len(caps) == 0 {
		caps = append(caps, domain.CapabilityLint)
	}

	severity := domain.SeverityWarning
	if cc.DefaultSeverity != "" {
		severity = domain.ParseSeverity(cc.DefaultSeverity)
	}

	return &Command{
		tool: tool{
			name:         cc.Name,
			executable:   cc.Executable,
			timeout:      cc.Timeout(),
			policy:       PolicyWithIssues(cc.IssueExitCodes),
			dir:          opts.Dir,
			capabilities: caps,
		},
		args:            append(append([]string{}, cc.Args...), cc.ExtraArgs...),
		fixArgs:         cc.FixArgs,
		pattern:         pattern,
		defaultSeverity: severity,
	}, nil
}

// SupportsFix reports whether fix arguments were configured
func (c *Command) SupportsFix() bool { return len(c.fixArgs) > 0 }

// Fingerprint identifies the command line and pattern
func (c *Command) Fingerprint() string {
	return fingerprint(c.name, c.executable, joinArgs(c.args), c.pattern.String(), string(c.defaultSeverity))
}

// Invoke runs the tool on one file
func (c *Command) Invoke(ctx context.Context, file string) (domain.RawOutput, error) {
	return c.run(ctx, file, append(append([]string{}, c.args...), file))
}

// Fix runs the configured fix command on one file
func (c *Command) Fix(ctx context.Context, file string) (domain.RawOutput, error) {
	if !c.SupportsFix() {
		return domain.RawOutput{}, domain.NewExecutionError(c.name, file, -1, "autofix not supported", nil)
	}
	return c.run(ctx, file, append(append([]string{}, c.fixArgs...), file))
}

// Parse applies the pattern to every stdout line
func (c *Command) Parse(file string, out domain.RawOutput) domain.ParseResult {
	var result domain.ParseResult
	for _, raw := range strings.Split(string(out.Stdout), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		match := c.pattern.FindStringSubmatch(line)
		if match == nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: unrecognized output line for %s: %q", c.name, file, line))
			continue
		}

		group := func(name string) string {
			if i := c.pattern.SubexpIndex(name); i >= 0 {
				return match[i]
			}
			return ""
		}

		if reported := group("file"); reported != "" && !samePath(reported, file) {
			continue
		}

		lineNo, err := strconv.Atoi(group("line"))
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: bad line number in %q", c.name, line))
			continue
		}

		is := domain.Issue{
			File:     file,
			Line:     max(lineNo, 1),
			Severity: c.defaultSeverity,
			Message:  strings.TrimSpace(group("message")),
			Code:     group("code"),
			Checker:  c.name,
			Fixable:  c.SupportsFix(),
		}
		if s := group("severity"); s != "" {
			is.Severity = domain.ParseSeverity(s)
		}
		if col, err := strconv.Atoi(group("col")); err == nil && col >= 0 {
			is.Column = domain.IntPtr(col)
		}
		result.Issues = append(result.Issues, is)
	}
	return result
}
