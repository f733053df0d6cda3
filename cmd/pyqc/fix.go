package main

import (
	"github.com/spf13/cobra"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/service"
)

func fixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix [path...]",
		Short: "Apply formatter and linter autofixes in place",
		Long: `Apply every enabled checker's autofix to the given files or directories
(default: the project root). For each file the checkers run one after
another, so a formatter and a linter never write the same file at once.

Exit codes:
  0 - Fixes applied (or, with --dry-run, nothing to fix)
  1 - With --dry-run: fixable issues found
  2 - A fixer failed, a tool is missing, or the configuration is invalid

Examples:
  # Format and fix the whole project
  pyqc fix

  # Only run formatters
  pyqc fix --format-only src/

  # Show what would change
  pyqc fix --dry-run`,
		RunE:          runFix,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Bool("dry-run", false, "Report fixable issues without modifying files")
	cmd.Flags().Bool("format-only", false, "Only run formatting checkers")
	cmd.Flags().StringP("output", "o", "text", "Output format: text, json")
	cmd.Flags().IntP("workers", "j", 0, "Files fixed concurrently (0 = number of CPUs)")
	addConfigFlags(cmd)

	return cmd
}

func runFix(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	formatOnly, _ := cmd.Flags().GetBool("format-only")
	output, _ := cmd.Flags().GetString("output")
	workers, _ := cmd.Flags().GetInt("workers")

	cfg, err := loadConfig(cmd, firstArg(args), service.ConfigOverrides{Workers: workers})
	if err != nil {
		return err
	}

	format := domain.OutputFormat(output)
	uc, err := newUseCase(cfg, cfg.Output.Progress && format == domain.OutputFormatText)
	if err != nil {
		return err
	}
	defer uc.Close()

	opts := domain.FixOptions{DryRun: dryRun}
	if formatOnly {
		opts.Checkers = uc.Registry().WithCapability(domain.CapabilityFormat)
		if len(opts.Checkers) == 0 {
			return &CheckExitError{Code: exitError, Message: "no formatting checker is enabled"}
		}
	}

	report, err := uc.RunFix(commandContext(cmd), args, opts)
	if err != nil {
		return toExitError(err)
	}

	if err := service.NewOutputFormatter().WriteFix(report, format, cmd.OutOrStdout()); err != nil {
		return toExitError(err)
	}

	if report.FailedFiles > 0 {
		return &CheckExitError{Code: exitError}
	}
	if dryRun {
		for _, f := range report.Files {
			if f.Fixable > 0 {
				return &CheckExitError{Code: exitIssues}
			}
		}
	}
	return nil
}
