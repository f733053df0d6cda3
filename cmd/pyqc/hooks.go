package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/config"
	"github.com/ludo-technologies/pyqc/internal/hooklog"
	"github.com/ludo-technologies/pyqc/service"
)

var (
	passStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	faintStyle = lipgloss.NewStyle().Faint(true)
	labelStyle = lipgloss.NewStyle().Width(18)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// hookInput is the JSON an agent hook passes on stdin
type hookInput struct {
	ToolName  string `json:"tool_name"`
	ToolInput struct {
		FilePath string `json:"file_path"`
		Command  string `json:"command"`
	} `json:"tool_input"`
}

func hooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Edit-time and commit-time hook entry points",
		Long: `Entry points for editor and agent hooks, plus inspection of the hook logs.

Edit-time checks are logged to .pyqc/hooks.log and commit gate decisions to
.pyqc/git_hooks.log (paths relative to the project root).`,
	}

	cmd.AddCommand(hooksFileCmd())
	cmd.AddCommand(hooksGateCmd())
	cmd.AddCommand(hooksStatsCmd())
	cmd.AddCommand(hooksLogCmd())
	cmd.AddCommand(hooksClearCmd())
	cmd.AddCommand(hooksSetupCmd())
	cmd.AddCommand(hooksValidateCmd())
	return cmd
}

// readHookInput decodes hook JSON from the command's stdin. A terminal or
// empty stdin yields a zero value.
func readHookInput(cmd *cobra.Command) (hookInput, error) {
	var in hookInput
	r := cmd.InOrStdin()
	if f, ok := r.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return in, nil
	}
	if err := json.NewDecoder(r).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return in, fmt.Errorf("invalid hook input: %w", err)
	}
	return in, nil
}

func hooksFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file [path...]",
		Short: "Check edited files in the background and log the outcome",
		Long: `Check one or more edited files. Without arguments the file path is read
from hook JSON on stdin ({"tool_input":{"file_path":"..."}}).

The outcome is written to the hook log only; this command always exits 0
so an editor is never interrupted.`,
		RunE:          runHooksFile,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addConfigFlags(cmd)
	return cmd
}

func runHooksFile(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		in, err := readHookInput(cmd)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "pyqc: %v\n", err)
			return nil
		}
		if in.ToolInput.FilePath != "" {
			paths = []string{in.ToolInput.FilePath}
		}
	}
	if len(paths) == 0 {
		return nil
	}

	cfg, err := loadConfig(cmd, paths[0], service.ConfigOverrides{})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "pyqc: %v\n", err)
		return nil
	}
	uc, err := newUseCase(cfg, false)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "pyqc: %v\n", err)
		return nil
	}
	defer uc.Close()

	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		uc.OnFileChanged(p)
	}
	uc.Wait()
	return nil
}

func hooksGateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate [command]",
		Short: "Run the commit gate for a shell command",
		Long: `Run the commit gate when command is a git commit. Without arguments the
command is read from hook JSON on stdin ({"tool_input":{"command":"..."}}).

Lint, format and type checks run concurrently with the test suite under one
combined timeout. Any other command passes through untouched.

Exit codes:
  0 - Not a commit, commit allowed, or blocked under the warn policy
  2 - Commit blocked`,
		RunE:          runHooksGate,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("policy", "", "Override gate.policy: block or warn")
	cmd.Flags().Bool("json", false, "Print the decision as JSON on stdout")
	addConfigFlags(cmd)
	return cmd
}

func runHooksGate(cmd *cobra.Command, args []string) error {
	command := strings.Join(args, " ")
	if command == "" {
		in, err := readHookInput(cmd)
		if err != nil {
			return toExitError(err)
		}
		command = in.ToolInput.Command
	}
	// Nothing to load for commands that are not commits
	if !service.IsCommitCommand(command) {
		return nil
	}

	policy, _ := cmd.Flags().GetString("policy")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd, "", service.ConfigOverrides{GatePolicy: policy})
	if err != nil {
		return err
	}
	uc, err := newUseCase(cfg, false)
	if err != nil {
		return err
	}
	defer uc.Close()

	decision, err := uc.OnCommitAttempt(commandContext(cmd), command)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "pyqc: %v\n", err)
	}
	if decision == nil {
		return nil
	}

	blocks := uc.Blocks(decision)
	if asJSON {
		if err := service.WriteJSON(cmd.OutOrStdout(), decision); err != nil {
			return toExitError(err)
		}
	}
	renderDecision(cmd.ErrOrStderr(), decision, blocks)

	if blocks {
		return &CheckExitError{Code: exitError}
	}
	return nil
}

func renderDecision(w io.Writer, d *domain.GateDecision, blocks bool) {
	took := d.Duration.Round(10 * time.Millisecond)
	if d.Allowed() {
		fmt.Fprintf(w, "%s commit allowed %s\n", passStyle.Render("pyqc gate: PASSED"), faintStyle.Render("("+took.String()+")"))
		return
	}

	fmt.Fprintf(w, "%s [%s] %s\n", failStyle.Render("pyqc gate: FAILED"), d.Reason, faintStyle.Render("("+took.String()+")"))
	if d.FailureDetail != "" {
		fmt.Fprintf(w, "  %s\n", d.FailureDetail)
	}
	if d.Tests.Output != "" && !d.Tests.Success {
		fmt.Fprintf(w, "  tests: %s\n", hooklog.Excerpt(d.Tests.Output, 500))
	}
	if blocks {
		fmt.Fprintln(w, "  commit blocked; run `pyqc check` for the full report")
	} else {
		fmt.Fprintln(w, warnStyle.Render("  warn policy: commit not blocked"))
	}
}

// openLog returns the edit-time or gate log for the project at cwd
func openLog(cmd *cobra.Command) (*hooklog.Logger, error) {
	gate, _ := cmd.Flags().GetBool("gate")
	cfg, err := loadConfig(cmd, "", service.ConfigOverrides{})
	if err != nil {
		return nil, err
	}
	return logFor(cfg, gate), nil
}

func logFor(cfg *config.Config, gate bool) *hooklog.Logger {
	if gate {
		return hooklog.NewGateLog(cfg.LogDir(), cfg.Hooks.ExcerptBytes)
	}
	return hooklog.NewEditLog(cfg.LogDir(), cfg.Hooks.ExcerptBytes)
}

func hooksStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show hook execution statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := openLog(cmd)
			if err != nil {
				return err
			}
			stats, err := log.Stats()
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return service.WriteJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStats(log.Path(), stats))
			return nil
		},
	}
	cmd.Flags().Bool("gate", false, "Use the commit gate log")
	cmd.Flags().Bool("json", false, "Print statistics as JSON")
	addConfigFlags(cmd)
	return cmd
}

func renderStats(path string, s hooklog.Stats) string {
	if s.Total == 0 {
		return faintStyle.Render("No executions recorded in " + path)
	}

	row := func(label, value string) string {
		return labelStyle.Render(label) + value
	}
	rate := fmt.Sprintf("%.1f%%", s.SuccessRate)
	switch {
	case s.SuccessRate >= 90:
		rate = passStyle.Render(rate)
	case s.SuccessRate < 50:
		rate = failStyle.Render(rate)
	}
	last := "-"
	if s.LastExecution != nil {
		last = s.LastExecution.Local().Format(time.DateTime)
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render(filepath.Base(path)),
		"",
		row("Total executions", fmt.Sprint(s.Total)),
		row("Successful", fmt.Sprint(s.Successful)),
		row("Failed", fmt.Sprint(s.Failed)),
		row("Success rate", rate),
		row("Average time", fmt.Sprintf("%.2fs", s.MeanDurationS)),
		row("Last execution", last),
	)
	return boxStyle.Render(body)
}

func hooksLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the most recent hook log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("lines")
			log, err := openLog(cmd)
			if err != nil {
				return err
			}
			lines, err := log.Tail(n)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntP("lines", "n", 20, "Number of lines (0 = all)")
	cmd.Flags().Bool("gate", false, "Use the commit gate log")
	addConfigFlags(cmd)
	return cmd
}

func hooksClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Truncate a hook log",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			log, err := openLog(cmd)
			if err != nil {
				return err
			}
			if !yes {
				prompt := promptui.Prompt{
					Label:     "Clear " + log.Path(),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}
			if err := log.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", log.Path())
			return nil
		},
	}
	cmd.Flags().Bool("gate", false, "Use the commit gate log")
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	addConfigFlags(cmd)
	return cmd
}
