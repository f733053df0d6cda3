package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ludo-technologies/pyqc/internal/testutil"
)

type cliProject struct {
	dir    string
	config string
}

// newCLIProject writes fake ruff and mypy executables and a project config
// pointing at them
func newCLIProject(t *testing.T) *cliProject {
	t.Helper()
	bin := t.TempDir()
	ruff, _ := testutil.WriteFakeTool(t, bin, "ruff", testutil.FakeTool{Script: testutil.RuffScript})
	mypy, _ := testutil.WriteFakeTool(t, bin, "mypy", testutil.FakeTool{Stdout: "Success: no issues found in 1 source file"})

	dir := t.TempDir()
	configPath := filepath.Join(dir, ".pyqc.yaml")
	content := fmt.Sprintf(`checkers:
  ruff:
    executable: %s
  mypy:
    executable: %s
cache:
  enabled: false
gate:
  run_tests: false
`, ruff, mypy)
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return &cliProject{dir: dir, config: configPath}
}

func (p *cliProject) file(t *testing.T, name, content string) string {
	t.Helper()
	return testutil.WritePythonFile(t, p.dir, name, content)
}

// run executes the root command and returns stdout, stderr and the error
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *CheckExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"check", "fix", "hooks", "watch", "cache", "config", "init", "version"} {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("Missing subcommand: %s", name)
		}
	}
}

func TestCheckCmd_FlagsExist(t *testing.T) {
	cmd := checkCmd()

	expectedFlags := []string{"lint", "format", "types", "output", "show-performance", "no-cache", "workers", "config", "verbose"}
	for _, flagName := range expectedFlags {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			t.Errorf("Missing expected flag: --%s", flagName)
		}
	}
}

func TestCheckCmd_ShortFlags(t *testing.T) {
	cmd := checkCmd()

	shortFlags := map[string]string{
		"o": "output",
		"j": "workers",
		"c": "config",
		"v": "verbose",
	}

	for short, long := range shortFlags {
		flag := cmd.Flags().ShorthandLookup(short)
		if flag == nil {
			t.Errorf("Missing short flag -%s for --%s", short, long)
		}
	}
}

func TestCheckExitError_Error(t *testing.T) {
	err := &CheckExitError{Code: 1, Message: "test error"}
	if err.Error() != "test error" {
		t.Errorf("Error() should return message, got '%s'", err.Error())
	}
}

func TestVersionCmd(t *testing.T) {
	stdout, _, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(stdout, "pyqc version ") {
		t.Errorf("unexpected output: %q", stdout)
	}
}

func TestCheckCmd_Clean(t *testing.T) {
	p := newCLIProject(t)
	p.file(t, "app.py", "x = 1\n")

	stdout, _, err := run(t, "", "check", "--config", p.config, p.dir)
	if err != nil {
		t.Fatalf("Expected exit 0, got %v", err)
	}
	if !strings.Contains(stdout, "Result: PASSED") {
		t.Errorf("Expected a passing report, got:\n%s", stdout)
	}
}

func TestCheckCmd_IssuesExitOne(t *testing.T) {
	p := newCLIProject(t)
	p.file(t, "app.py", "x  =  1\n")

	stdout, _, err := run(t, "", "check", "--config", p.config, p.dir)
	if code := exitCode(err); code != 1 {
		t.Fatalf("Expected exit 1, got %d (%v)", code, err)
	}
	if !strings.Contains(stdout, "ruff-format") {
		t.Errorf("Expected the formatting issue in output:\n%s", stdout)
	}
}

func TestCheckCmd_SubsetFlags(t *testing.T) {
	p := newCLIProject(t)
	p.file(t, "app.py", "x  =  1\n")

	_, _, err := run(t, "", "check", "--types", "--config", p.config, p.dir)
	if err != nil {
		t.Errorf("Formatting is outside --types, expected exit 0, got %v", err)
	}
}

func TestCheckCmd_MissingToolExitTwo(t *testing.T) {
	p := newCLIProject(t)
	p.file(t, "app.py", "x = 1\n")
	t.Setenv("PYQC_CHECKERS_MYPY_EXECUTABLE", filepath.Join(t.TempDir(), "mypy"))

	stdout, _, err := run(t, "", "check", "--config", p.config, p.dir)
	if code := exitCode(err); code != 2 {
		t.Fatalf("Expected exit 2, got %d (%v)", code, err)
	}
	if !strings.Contains(err.Error(), "tool_unavailable") {
		t.Errorf("Expected a tool_unavailable error, got %q", err.Error())
	}
	if stdout != "" {
		t.Errorf("No partial report expected, got:\n%s", stdout)
	}
}

func TestCheckCmd_JSONOutput(t *testing.T) {
	p := newCLIProject(t)
	p.file(t, "app.py", "import os\n")

	stdout, _, err := run(t, "", "check", "-o", "json", "--config", p.config, p.dir)
	if code := exitCode(err); code != 1 {
		t.Fatalf("Expected exit 1, got %d", code)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, stdout)
	}
	for _, key := range []string{"summary", "issues"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("JSON output missing %q", key)
		}
	}
}

func TestCheckCmd_InvalidOutputFormat(t *testing.T) {
	p := newCLIProject(t)

	_, _, err := run(t, "", "check", "-o", "xml", "--config", p.config, p.dir)
	if code := exitCode(err); code != 2 {
		t.Errorf("Expected exit 2 for an invalid format, got %d", code)
	}
}

func TestFixCmd_DryRunAndApply(t *testing.T) {
	p := newCLIProject(t)
	file := p.file(t, "app.py", "x  =  1\n")

	_, _, err := run(t, "", "fix", "--dry-run", "--config", p.config, p.dir)
	if code := exitCode(err); code != 1 {
		t.Fatalf("Expected dry run to exit 1, got %d (%v)", code, err)
	}
	if data, _ := os.ReadFile(file); string(data) != "x  =  1\n" {
		t.Fatalf("Dry run modified the file: %q", data)
	}

	stdout, _, err := run(t, "", "fix", "--format-only", "--config", p.config, p.dir)
	if err != nil {
		t.Fatalf("fix failed: %v", err)
	}
	if data, _ := os.ReadFile(file); string(data) != "x = 1\n" {
		t.Errorf("File was not formatted: %q", data)
	}
	if !strings.Contains(stdout, "ruff-format") {
		t.Errorf("Expected applied fixers in output:\n%s", stdout)
	}
}

func TestConfigShow(t *testing.T) {
	p := newCLIProject(t)

	stdout, _, err := run(t, "", "config", "show", "--config", p.config)
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(stdout, "# source: "+p.config) {
		t.Errorf("Expected the config source, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "line_length: 88") {
		t.Errorf("Expected defaults to be filled in, got:\n%s", stdout)
	}
}

func TestCacheCmd_Disabled(t *testing.T) {
	p := newCLIProject(t)

	stdout, _, err := run(t, "", "cache", "stats", "--config", p.config)
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	if !strings.Contains(stdout, "disabled") {
		t.Errorf("Expected a disabled notice, got %q", stdout)
	}
}

func TestCacheCmd_StatsAndClear(t *testing.T) {
	p := newCLIProject(t)
	t.Setenv("PYQC_CACHE_ENABLED", "true")
	p.file(t, "app.py", "x = 1\n")

	if _, _, err := run(t, "", "check", "--config", p.config, p.dir); err != nil {
		t.Fatalf("check failed: %v", err)
	}

	stdout, _, err := run(t, "", "cache", "stats", "--json", "--config", p.config)
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	var stats struct {
		Entries int `json:"entries"`
	}
	if err := json.Unmarshal([]byte(stdout), &stats); err != nil {
		t.Fatalf("Output is not JSON: %v", err)
	}
	if stats.Entries != 3 {
		t.Errorf("Expected one entry per checker, got %d", stats.Entries)
	}

	if _, _, err := run(t, "", "cache", "clear", "--config", p.config); err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
	stdout, _, _ = run(t, "", "cache", "stats", "--json", "--config", p.config)
	_ = json.Unmarshal([]byte(stdout), &stats)
	if stats.Entries != 0 {
		t.Errorf("Expected an empty cache after clear, got %d", stats.Entries)
	}
}
