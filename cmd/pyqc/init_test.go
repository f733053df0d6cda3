package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ludo-technologies/pyqc/internal/config"
)

func TestInitCommand_BasicConfigCreation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".pyqc.yaml")

	cmd := initCmd()
	cmd.SetArgs([]string{"--config", configPath})
	cmd.SetOut(&strings.Builder{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init command failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"checkers:",
		"line_length:",
		"analysis:",
		"cache:",
		"hooks:",
		"gate:",
		"output:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing expected section: %s", section)
		}
	}
}

func TestInitCommand_ForceOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".pyqc.yaml")

	if err := os.WriteFile(configPath, []byte("existing: true\n"), 0644); err != nil {
		t.Fatalf("Failed to create existing file: %v", err)
	}

	cmd := initCmd()
	cmd.SetArgs([]string{"--config", configPath})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("Expected error when file exists without --force")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}

	cmd = initCmd()
	cmd.SetArgs([]string{"--config", configPath, "--force"})
	cmd.SetOut(&strings.Builder{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	if !strings.Contains(string(content), "checkers:") {
		t.Error("Config file was not overwritten with new content")
	}
}

func TestInitCommand_MinimalConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".pyqc.yaml")

	cmd := initCmd()
	cmd.SetArgs([]string{"--config", configPath, "--minimal"})
	cmd.SetOut(&strings.Builder{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init --minimal failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	contentStr := string(content)

	if !strings.Contains(contentStr, "minimal") {
		t.Error("Minimal config should indicate it's minimal")
	}
	if strings.Contains(contentStr, "custom_checkers") {
		t.Error("Minimal config should not document custom checkers")
	}
	if len(contentStr) >= len(config.GetFullConfigTemplate(config.StrictnessStandard)) {
		t.Error("Minimal config should be shorter than the full template")
	}
}

func TestInitCommand_InvalidStrictness(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".pyqc.yaml")

	cmd := initCmd()
	cmd.SetArgs([]string{"--config", configPath, "--strictness", "pedantic"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("Expected error for an unknown strictness")
	}
	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		t.Error("No file should be written for an unknown strictness")
	}
}

func TestInitCommand_InvalidDirectory(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "missing", ".pyqc.yaml")

	cmd := initCmd()
	cmd.SetArgs([]string{"--config", configPath})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("Expected error for a missing directory")
	}
	if !strings.Contains(err.Error(), "directory does not exist") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestInitCommand_PrintsCreatedPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".pyqc.yaml")

	var out strings.Builder
	cmd := initCmd()
	cmd.SetArgs([]string{"--config", configPath})
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out.String(), "Created "+configPath) {
		t.Errorf("Expected the created path, got %q", out.String())
	}
}

func TestGeneratedTemplatesLoad(t *testing.T) {
	templates := map[string]string{
		"minimal":  config.GetMinimalConfigTemplate(),
		"relaxed":  config.GetFullConfigTemplate(config.StrictnessRelaxed),
		"standard": config.GetFullConfigTemplate(config.StrictnessStandard),
		"strict":   config.GetFullConfigTemplate(config.StrictnessStrict),
	}

	for name, content := range templates {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".pyqc.yaml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatalf("Failed to write template: %v", err)
			}
			cfg, err := config.LoadConfig(path)
			if err != nil {
				t.Fatalf("Template does not load: %v", err)
			}
			if cfg.Checkers.LineLength != config.DefaultLineLength {
				t.Errorf("line_length = %d, want %d", cfg.Checkers.LineLength, config.DefaultLineLength)
			}
		})
	}
}

func TestStrictnessPresets(t *testing.T) {
	presets := config.GetStrictnessPresets()

	for _, level := range []config.Strictness{config.StrictnessRelaxed, config.StrictnessStandard, config.StrictnessStrict} {
		if _, ok := presets[level]; !ok {
			t.Errorf("Missing preset: %s", level)
		}
	}

	if presets[config.StrictnessRelaxed].GatePolicy != "warn" {
		t.Error("Relaxed preset should only warn at the gate")
	}
	if presets[config.StrictnessStrict].GatePolicy != "block" {
		t.Error("Strict preset should block at the gate")
	}
	if len(presets[config.StrictnessStrict].ExtendSelect) <= len(presets[config.StrictnessRelaxed].ExtendSelect) {
		t.Error("Strict preset should select more rules than relaxed")
	}

	relaxed := config.GetFullConfigTemplate(config.StrictnessRelaxed)
	if !strings.Contains(relaxed, "policy: warn") || !strings.Contains(relaxed, "run_tests: false") {
		t.Error("Relaxed template does not reflect its preset")
	}
}
