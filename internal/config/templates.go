package config

import (
	"strconv"
	"strings"
)

// Strictness represents how strict the generated configuration is
type Strictness string

const (
	StrictnessRelaxed  Strictness = "relaxed"
	StrictnessStandard Strictness = "standard"
	StrictnessStrict   Strictness = "strict"
)

// StrictnessPreset holds the values a strictness level changes
type StrictnessPreset struct {
	ExtendSelect []string
	MypyStrict   bool
	GatePolicy   string
	RunTests     bool
}

// GetStrictnessPresets returns presets for different strictness levels
func GetStrictnessPresets() map[Strictness]StrictnessPreset {
	return map[Strictness]StrictnessPreset{
		StrictnessRelaxed: {
			ExtendSelect: []string{"I"},
			MypyStrict:   false,
			GatePolicy:   "warn",
			RunTests:     false,
		},
		StrictnessStandard: {
			ExtendSelect: DefaultRuffExtendSelect,
			MypyStrict:   true,
			GatePolicy:   "block",
			RunTests:     true,
		},
		StrictnessStrict: {
			ExtendSelect: []string{"I", "N", "UP", "B", "SIM", "RUF"},
			MypyStrict:   true,
			GatePolicy:   "block",
			RunTests:     true,
		},
	}
}

// GetFullConfigTemplate returns the documented config template as YAML
func GetFullConfigTemplate(strictness Strictness) string {
	preset, ok := GetStrictnessPresets()[strictness]
	if !ok {
		preset = GetStrictnessPresets()[StrictnessStandard]
	}

	return `# pyqc configuration
# Generated by "pyqc init". Every key is optional; omitted keys use defaults.

# ============================================================================
# CHECKERS
# ============================================================================
checkers:
  # Checkers to run, in order. Built-ins: ruff-format, ruff-lint, mypy
  enabled:
    - ruff-format
    - ruff-lint
    - mypy

  # Shared by the linter and the formatter
  line_length: ` + strconv.Itoa(DefaultLineLength) + `

  ruff:
    executable: ruff
    timeout_seconds: 30
    # Exit codes meaning "found issues" rather than "tool failed"
    issue_exit_codes: [1]
    extend_select: ` + yamlList(preset.ExtendSelect) + `
    ignore: ` + yamlList(DefaultRuffIgnore) + `

  mypy:
    executable: mypy
    timeout_seconds: 30
    issue_exit_codes: [1]
    strict: ` + strconv.FormatBool(preset.MypyStrict) + `
    ignore_missing_imports: true

# Extra line-oriented tools. The pattern needs named groups "line" and
# "message"; "file", "col", "severity" and "code" are optional.
custom_checkers: []
#  - name: pylint
#    executable: pylint
#    args: ["--output-format=parseable"]
#    pattern: '^(?P<file>[^:]+):(?P<line>\d+): \[(?P<code>\w+)[^\]]*\] (?P<message>.+)$'
#    default_severity: warning
#    capabilities: [lint]

# ============================================================================
# FILE COLLECTION
# ============================================================================
analysis:
  recursive: true
  respect_gitignore: true
  exclude_patterns: ` + yamlList(DefaultConfig().Analysis.ExcludePatterns) + `

performance:
  # Concurrent tool invocations (0 = number of CPUs)
  max_goroutines: 0
  timeout_seconds: 300

cache:
  enabled: true
  dir: .pyqc/cache
  ttl_hours: ` + strconv.Itoa(DefaultCacheTTLHours) + `

# ============================================================================
# HOOKS AND COMMIT GATE
# ============================================================================
hooks:
  log_dir: .pyqc
  excerpt_bytes: ` + strconv.Itoa(DefaultExcerptBytes) + `

gate:
  # "block" stops a failing commit, "warn" only reports it
  policy: ` + preset.GatePolicy + `
  # "pre-commit" checks the project, "post-commit" the files in HEAD
  mode: pre-commit
  timeout_seconds: 30
  check_timeout_seconds: 20
  test_timeout_seconds: 25
  run_tests: ` + strconv.FormatBool(preset.RunTests) + `
  test_command: ` + yamlList(DefaultTestCommand) + `

# ============================================================================
# OUTPUT
# ============================================================================
output:
  # text, json, github, sarif
  format: text
  show_performance: false
  progress: true

logging:
  level: warn
  format: console

metrics:
  # Write Prometheus text-format metrics here after each run
  textfile_path: ""
`
}

// GetMinimalConfigTemplate returns a minimal config template
func GetMinimalConfigTemplate() string {
	return `# pyqc configuration (minimal)
checkers:
  enabled: [ruff-format, ruff-lint, mypy]
  line_length: ` + strconv.Itoa(DefaultLineLength) + `

gate:
  policy: block
`
}

// yamlList formats a string slice as a YAML flow sequence
func yamlList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = strconv.Quote(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
