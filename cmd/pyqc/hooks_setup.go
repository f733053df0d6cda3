package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const (
	gateHookCommand = "pyqc hooks gate"
	fileHookCommand = "pyqc hooks file"
)

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

type hookMatcher struct {
	Matcher string        `json:"matcher"`
	Hooks   []hookCommand `json:"hooks"`
}

func hooksSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register pyqc in an agent's hook settings",
		Long: `Add pyqc to .claude/settings.json: the commit gate runs before every shell
command and the edit-time check after every file write.

Other settings and hooks are preserved. An existing file is backed up to
settings.json.bak first.`,
		RunE: runHooksSetup,
	}
	cmd.Flags().String("settings", filepath.Join(".claude", "settings.json"), "Settings file to update")
	cmd.Flags().Int("timeout", 60, "Hook timeout in seconds recorded for the gate")
	return cmd
}

func runHooksSetup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("settings")
	timeout, _ := cmd.Flags().GetInt("timeout")

	settings := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := os.WriteFile(path+".bak", data, 0644); err != nil {
			return fmt.Errorf("failed to back up %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := installHooks(settings, timeout); err != nil {
		return err
	}

	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "  PreToolUse  Bash                  -> %s\n", gateHookCommand)
	fmt.Fprintf(cmd.OutOrStdout(), "  PostToolUse Write|Edit|MultiEdit  -> %s\n", fileHookCommand)
	return nil
}

func hooksValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that an agent's hook settings call pyqc",
		Long: `Verify that .claude/settings.json registers the commit gate before shell
commands and the edit-time check after file writes, as "hooks setup" writes them.

Exits 1 when the settings are missing, malformed or lack a pyqc hook.`,
		RunE: runHooksValidate,
	}
	cmd.Flags().String("settings", filepath.Join(".claude", "settings.json"), "Settings file to check")
	return cmd
}

func runHooksValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("settings")
	out := cmd.OutOrStdout()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		fmt.Fprintf(out, "No settings file at %s; run \"pyqc hooks setup\"\n", path)
		return &CheckExitError{Code: exitIssues}
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	settings := map[string]any{}
	if err := json.Unmarshal(data, &settings); err != nil {
		fmt.Fprintf(out, "%s is not valid JSON: %v\n", path, err)
		return &CheckExitError{Code: exitIssues}
	}

	problems := validateHooks(settings)
	if len(problems) > 0 {
		fmt.Fprintf(out, "%s: %d problem(s)\n", path, len(problems))
		for _, p := range problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
		return &CheckExitError{Code: exitIssues}
	}

	fmt.Fprintf(out, "%s: hooks OK\n", path)
	if _, err := exec.LookPath("pyqc"); err != nil {
		fmt.Fprintln(out, "warning: pyqc is not on PATH; the hooks will fail to start")
	}
	return nil
}

// validateHooks lists what is missing for the settings to run both pyqc hooks
func validateHooks(settings map[string]any) []string {
	raw, present := settings["hooks"]
	if !present {
		return []string{`no "hooks" section`}
	}
	hooks, ok := raw.(map[string]any)
	if !ok {
		return []string{`"hooks" is not an object`}
	}

	var problems []string
	expect := func(event, tool, command string) {
		entries, _ := hooks[event].([]any)
		for _, e := range entries {
			data, _ := json.Marshal(e)
			var m hookMatcher
			if json.Unmarshal(data, &m) != nil {
				continue
			}
			for _, h := range m.Hooks {
				if h.Command != command {
					continue
				}
				if !matcherCovers(m.Matcher, tool) {
					problems = append(problems, fmt.Sprintf("%s: %q does not match %s", event, command, tool))
				}
				return
			}
		}
		problems = append(problems, fmt.Sprintf("%s: %q is not registered", event, command))
	}

	expect("PreToolUse", "Bash", gateHookCommand)
	expect("PostToolUse", "Write", fileHookCommand)
	return problems
}

// matcherCovers reports whether a "|"-separated matcher names tool. An
// empty matcher or "*" matches every tool.
func matcherCovers(matcher, tool string) bool {
	if matcher == "" || matcher == "*" {
		return true
	}
	for _, m := range strings.Split(matcher, "|") {
		if strings.TrimSpace(m) == tool {
			return true
		}
	}
	return false
}

// installHooks replaces any earlier pyqc entries and leaves the rest alone
func installHooks(settings map[string]any, timeout int) error {
	hooks, ok := settings["hooks"].(map[string]any)
	if !ok {
		if settings["hooks"] != nil {
			return fmt.Errorf("settings: \"hooks\" is not an object")
		}
		hooks = map[string]any{}
	}

	add := func(event string, entry hookMatcher) {
		existing, _ := hooks[event].([]any)
		kept := make([]any, 0, len(existing)+1)
		for _, e := range existing {
			raw, _ := json.Marshal(e)
			if strings.Contains(string(raw), "pyqc hooks") {
				continue
			}
			kept = append(kept, e)
		}
		hooks[event] = append(kept, entry)
	}

	add("PreToolUse", hookMatcher{
		Matcher: "Bash",
		Hooks:   []hookCommand{{Type: "command", Command: gateHookCommand, Timeout: timeout}},
	})
	add("PostToolUse", hookMatcher{
		Matcher: "Write|Edit|MultiEdit",
		Hooks:   []hookCommand{{Type: "command", Command: fileHookCommand}},
	})

	settings["hooks"] = hooks
	return nil
}
