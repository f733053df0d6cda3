package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Checkers.LineLength != DefaultLineLength {
		t.Errorf("Expected line length %d, got %d", DefaultLineLength, config.Checkers.LineLength)
	}
	if len(config.Checkers.Enabled) != 3 {
		t.Errorf("Expected 3 enabled checkers, got %v", config.Checkers.Enabled)
	}
	if !config.Checkers.Mypy.Strict || !config.Checkers.Mypy.IgnoreMissingImports {
		t.Error("mypy should default to strict with ignore_missing_imports")
	}
	if config.Cache.TTL() != 7*24*time.Hour {
		t.Errorf("Expected 7 day TTL, got %v", config.Cache.TTL())
	}
	if config.Gate.Policy != "block" {
		t.Errorf("Expected block policy, got %s", config.Gate.Policy)
	}
	total, _, _ := config.Gate.Timeouts()
	if total != 30*time.Second {
		t.Errorf("Expected 30s combined gate timeout, got %v", total)
	}
}

func TestConfig_Validate_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestConfig_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"unknown checker", func(c *Config) { c.Checkers.Enabled = []string{"pylint"} }, "unknown checker"},
		{"duplicate checker", func(c *Config) { c.Checkers.Enabled = []string{"mypy", "mypy"} }, "listed twice"},
		{"no checkers", func(c *Config) { c.Checkers.Enabled = nil }, "enabled"},
		{"line length", func(c *Config) { c.Checkers.LineLength = 5 }, "linelength"},
		{"output format", func(c *Config) { c.Output.Format = "html" }, "format"},
		{"gate policy", func(c *Config) { c.Gate.Policy = "maybe" }, "policy"},
		{"gate mode", func(c *Config) { c.Gate.Mode = "sometimes" }, "mode"},
		{"stream timeout", func(c *Config) { c.Gate.TestTimeoutSeconds = 60 }, "must not exceed"},
		{"empty test command", func(c *Config) { c.Gate.TestCommand = nil }, "test_command"},
		{"issue exit code zero", func(c *Config) { c.Checkers.Mypy.IssueExitCodes = []int{0} }, "issueexitcodes"},
		{"custom without pattern", func(c *Config) {
			c.CustomCheckers = []CommandCheckerConfig{{Name: "x", ToolConfig: ToolConfig{Executable: "x"}}}
		}, "pattern"},
		{"custom shadows builtin", func(c *Config) {
			c.CustomCheckers = []CommandCheckerConfig{{Name: "mypy", Pattern: "x", ToolConfig: ToolConfig{Executable: "x"}}}
		}, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConfig_Validate_CustomCheckerEnabled(t *testing.T) {
	config := DefaultConfig()
	config.CustomCheckers = []CommandCheckerConfig{{
		Name:       "pylint",
		ToolConfig: ToolConfig{Executable: "pylint"},
		Pattern:    `^(?P<line>\d+): (?P<message>.+)$`,
	}}
	config.Checkers.Enabled = append(config.Checkers.Enabled, "pylint")
	if err := config.Validate(); err != nil {
		t.Errorf("Custom checker should be accepted: %v", err)
	}
}

func TestLoadConfig_Default(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig with empty path failed: %v", err)
	}
	if config.Checkers.LineLength != DefaultLineLength {
		t.Error("Loaded config should match default")
	}
	if config.Source() != "" {
		t.Errorf("Expected no source file, got %s", config.Source())
	}
}

func TestLoadConfig_NonExistent(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-existent config file")
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".pyqc.yaml")
	content := `checkers:
  enabled: [ruff-lint]
  mypy:
    strict: false
gate:
  policy: warn
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(config.Checkers.Enabled) != 1 || config.Checkers.Enabled[0] != "ruff-lint" {
		t.Errorf("Expected only ruff-lint enabled, got %v", config.Checkers.Enabled)
	}
	if config.Checkers.Mypy.Strict {
		t.Error("mypy.strict should be overridden to false")
	}
	if !config.Checkers.Mypy.IgnoreMissingImports {
		t.Error("Unset keys should keep their defaults")
	}
	if config.Gate.Policy != "warn" {
		t.Errorf("Expected warn policy, got %s", config.Gate.Policy)
	}
	if config.Root() != tempDir {
		t.Errorf("Expected root %s, got %s", tempDir, config.Root())
	}
	if config.CacheDir() != filepath.Join(tempDir, ".pyqc", "cache") {
		t.Errorf("Unexpected cache dir %s", config.CacheDir())
	}
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "pyqc.yaml")
	if err := os.WriteFile(configPath, []byte("output:\n  format: html\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadConfig(configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected invalid configuration error, got %v", err)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("PYQC_GATE_POLICY", "warn")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Gate.Policy != "warn" {
		t.Errorf("Expected env override to warn, got %s", config.Gate.Policy)
	}
}

func TestLoadConfigWithTarget_DiscoversUpward(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "pkg")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("Failed to create dirs: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ".pyqc.yml"), []byte("checkers:\n  line_length: 100\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config, err := LoadConfigWithTarget("", nested)
	if err != nil {
		t.Fatalf("LoadConfigWithTarget failed: %v", err)
	}
	if config.Checkers.LineLength != 100 {
		t.Errorf("Expected discovered line length 100, got %d", config.Checkers.LineLength)
	}
	if config.Root() != root {
		t.Errorf("Expected root %s, got %s", root, config.Root())
	}
}

func TestSearchConfigInDirectory(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "pyqc.yaml")
	if err := os.WriteFile(configPath, []byte("checkers: {}"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	result := searchConfigInDirectory(tempDir, configCandidates)
	if result != configPath {
		t.Errorf("Expected %s, got %s", configPath, result)
	}

	result = searchConfigInDirectory(t.TempDir(), configCandidates)
	if result != "" {
		t.Error("Expected empty string for directory without config")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	config := DefaultConfig()
	config.Checkers.LineLength = 120

	if err := SaveConfig(config, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Checkers.LineLength != 120 {
		t.Errorf("Expected 120, got %d", loaded.Checkers.LineLength)
	}
}

func TestFullConfigTemplate_ParsesAndValidates(t *testing.T) {
	for strictness := range GetStrictnessPresets() {
		t.Run(string(strictness), func(t *testing.T) {
			var parsed map[string]any
			if err := yaml.Unmarshal([]byte(GetFullConfigTemplate(strictness)), &parsed); err != nil {
				t.Fatalf("Template is not valid YAML: %v", err)
			}

			path := filepath.Join(t.TempDir(), ".pyqc.yaml")
			if err := os.WriteFile(path, []byte(GetFullConfigTemplate(strictness)), 0644); err != nil {
				t.Fatalf("Failed to write template: %v", err)
			}
			if _, err := LoadConfig(path); err != nil {
				t.Errorf("Template should load cleanly: %v", err)
			}
		})
	}
}

func TestLoadDefaultConfig(t *testing.T) {
	config, err := LoadDefaultConfig()
	if err != nil {
		t.Fatalf("LoadDefaultConfig failed: %v", err)
	}
	if config.Checkers.Ruff.Executable != "ruff" {
		t.Errorf("Expected ruff executable, got %q", config.Checkers.Ruff.Executable)
	}
	if len(config.Checkers.Ruff.IssueExitCodes) != 1 || config.Checkers.Ruff.IssueExitCodes[0] != 1 {
		t.Errorf("Unexpected issue exit codes %v", config.Checkers.Ruff.IssueExitCodes)
	}
}
