package main

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/checker"
	"github.com/ludo-technologies/pyqc/service"
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [path...]",
		Short: "Run every enabled checker over Python files",
		Long: `Run the enabled checkers over the given files or directories (default: the
project root) and print one merged report.

Exit codes:
  0 - No error-severity issues
  1 - Error-severity issues found
  2 - A checker failed to run, a tool is missing, or the configuration is invalid

Examples:
  # Check the whole project
  pyqc check

  # Lint and type-check one package, skipping the formatter
  pyqc check --lint --types src/

  # GitHub Actions annotations
  pyqc check --output github

  # SARIF for code scanning upload
  pyqc check --output sarif > pyqc.sarif`,
		RunE:          runCheck,
		SilenceUsage:  true, // Don't print usage on errors (we handle our own output)
		SilenceErrors: true, // Don't print error messages (we handle our own output)
	}

	cmd.Flags().Bool("lint", false, "Run lint checkers")
	cmd.Flags().Bool("format", false, "Run formatting checkers")
	cmd.Flags().Bool("types", false, "Run type checkers")
	cmd.Flags().StringP("output", "o", "",
		"Output format: text, json, github, sarif (default from config)")
	cmd.Flags().Bool("show-performance", false,
		"Append timing, cache and throughput figures to text output")
	cmd.Flags().Bool("no-cache", false, "Ignore cached results")
	cmd.Flags().IntP("workers", "j", 0, "Concurrent tool invocations (0 = number of CPUs)")
	addConfigFlags(cmd)

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	showPerf, _ := cmd.Flags().GetBool("show-performance")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	workers, _ := cmd.Flags().GetInt("workers")

	cfg, err := loadConfig(cmd, firstArg(args), service.ConfigOverrides{
		OutputFormat:    output,
		ShowPerformance: showPerf,
		Workers:         workers,
		NoCache:         noCache,
	})
	if err != nil {
		return err
	}

	format := domain.OutputFormat(cfg.Output.Format)
	uc, err := newUseCase(cfg, cfg.Output.Progress && format == domain.OutputFormatText)
	if err != nil {
		return err
	}
	defer uc.Close()

	selected, restricted := selectCheckers(cmd, uc.Registry())
	if restricted && len(selected) == 0 {
		return &CheckExitError{Code: exitError, Message: "no enabled checker matches the selected capabilities"}
	}

	report, err := uc.RunChecks(commandContext(cmd), args, domain.CheckOptions{Checkers: selected})
	if err != nil {
		return toExitError(err)
	}

	formatter := service.NewOutputFormatter(service.WithPerformanceBlock(cfg.Output.ShowPerformance))
	if err := formatter.Write(report, format, cmd.OutOrStdout()); err != nil {
		return toExitError(err)
	}

	switch {
	case report.HasExecutionFailures():
		return &CheckExitError{Code: exitError}
	case !report.Success:
		return &CheckExitError{Code: exitIssues}
	}
	return nil
}

// selectCheckers turns --lint/--format/--types into checker names. The
// boolean is false when no capability flag was given.
func selectCheckers(cmd *cobra.Command, registry *checker.Registry) ([]string, bool) {
	flags := []struct {
		name       string
		capability domain.Capability
	}{
		{"lint", domain.CapabilityLint},
		{"format", domain.CapabilityFormat},
		{"types", domain.CapabilityTypeCheck},
	}

	var wanted []domain.Capability
	for _, f := range flags {
		if on, _ := cmd.Flags().GetBool(f.name); on {
			wanted = append(wanted, f.capability)
		}
	}
	if len(wanted) == 0 {
		return nil, false
	}

	names := []string{}
	for _, name := range registry.Names() {
		c, _ := registry.Get(name)
		for _, capability := range wanted {
			if slices.Contains(c.Capabilities(), capability) {
				names = append(names, name)
				break
			}
		}
	}
	return names, true
}
