package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ludo-technologies/pyqc/internal/constants"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default checker options, matching what ruff and mypy users expect out of the box
const (
	// DefaultLineLength is the black/ruff line length
	DefaultLineLength = 88

	// DefaultExcerptBytes bounds tool output stored in hook logs
	DefaultExcerptBytes = 500

	// DefaultCacheTTLHours keeps cache entries for a week
	DefaultCacheTTLHours = int(constants.DefaultCacheTTL / time.Hour)
)

var (
	// DefaultRuffExtendSelect adds import sorting, naming and pyupgrade rules
	DefaultRuffExtendSelect = []string{"I", "N", "UP"}

	// DefaultRuffIgnore leaves line length to the formatter
	DefaultRuffIgnore = []string{"E501"}

	// DefaultTestCommand runs the fast unit suite only
	DefaultTestCommand = []string{
		"pytest", "--no-cov", "--tb=short", "--maxfail=5", "-q",
		"--disable-warnings", "-x", "-m", "not e2e",
	}
)

// Config represents the main configuration structure
type Config struct {
	// Checkers holds built-in checker selection and options
	Checkers CheckersConfig `json:"checkers" mapstructure:"checkers" yaml:"checkers"`

	// CustomCheckers registers additional line-oriented tools
	CustomCheckers []CommandCheckerConfig `json:"custom_checkers" mapstructure:"custom_checkers" yaml:"custom_checkers" validate:"dive"`

	// Analysis controls which files are collected
	Analysis AnalysisConfig `json:"analysis" mapstructure:"analysis" yaml:"analysis"`

	// Performance holds worker pool settings
	Performance PerformanceConfig `json:"performance" mapstructure:"performance" yaml:"performance"`

	// Cache holds result cache settings
	Cache CacheConfig `json:"cache" mapstructure:"cache" yaml:"cache"`

	// Hooks holds hook log settings
	Hooks HooksConfig `json:"hooks" mapstructure:"hooks" yaml:"hooks"`

	// Gate holds commit gate settings
	Gate GateConfig `json:"gate" mapstructure:"gate" yaml:"gate"`

	// Output holds output formatting configuration
	Output OutputConfig `json:"output" mapstructure:"output" yaml:"output"`

	// Logging holds diagnostic logger settings
	Logging LoggingConfig `json:"logging" mapstructure:"logging" yaml:"logging"`

	// Metrics holds run metrics export settings
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics" yaml:"metrics"`

	// root is the directory relative paths are resolved against
	root string
	// source is the file the configuration was read from, empty for defaults
	source string
}

// CheckersConfig selects and tunes the built-in checkers
type CheckersConfig struct {
	// Enabled lists checker names to run, in order
	Enabled []string `json:"enabled" mapstructure:"enabled" yaml:"enabled" validate:"min=1,dive,required"`

	// LineLength is shared by the linter and formatter
	LineLength int `json:"line_length" mapstructure:"line_length" yaml:"line_length" validate:"gte=20,lte=500"`

	Ruff RuffConfig `json:"ruff" mapstructure:"ruff" yaml:"ruff"`
	Mypy MypyConfig `json:"mypy" mapstructure:"mypy" yaml:"mypy"`
}

// ToolConfig holds options every external tool shares
type ToolConfig struct {
	// Executable overrides the command looked up on PATH
	Executable string `json:"executable" mapstructure:"executable" yaml:"executable"`

	// TimeoutSeconds bounds a single invocation
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=0"`

	// IssueExitCodes are exit codes that mean "ran fine, found issues"
	IssueExitCodes []int `json:"issue_exit_codes" mapstructure:"issue_exit_codes" yaml:"issue_exit_codes" validate:"dive,gte=1,lte=255"`

	// ExtraArgs are appended before the file path
	ExtraArgs []string `json:"extra_args" mapstructure:"extra_args" yaml:"extra_args"`
}

// Timeout returns the invocation timeout, falling back to the tool default
func (t ToolConfig) Timeout() time.Duration {
	if t.TimeoutSeconds <= 0 {
		return constants.DefaultToolTimeout
	}
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// RuffConfig configures the ruff linter and formatter
type RuffConfig struct {
	ToolConfig `mapstructure:",squash" yaml:",inline"`

	Select       []string `json:"select" mapstructure:"select" yaml:"select"`
	ExtendSelect []string `json:"extend_select" mapstructure:"extend_select" yaml:"extend_select"`
	Ignore       []string `json:"ignore" mapstructure:"ignore" yaml:"ignore"`
}

// MypyConfig configures the mypy type checker
type MypyConfig struct {
	ToolConfig `mapstructure:",squash" yaml:",inline"`

	Strict               bool `json:"strict" mapstructure:"strict" yaml:"strict"`
	IgnoreMissingImports bool `json:"ignore_missing_imports" mapstructure:"ignore_missing_imports" yaml:"ignore_missing_imports"`
}

// CommandCheckerConfig describes a generic tool whose output is one issue per line
type CommandCheckerConfig struct {
	ToolConfig `mapstructure:",squash" yaml:",inline"`

	Name string `json:"name" mapstructure:"name" yaml:"name" validate:"required"`

	// Args come before the file path; the executable must be set
	Args []string `json:"args" mapstructure:"args" yaml:"args"`

	// FixArgs enable autofix when non-empty
	FixArgs []string `json:"fix_args" mapstructure:"fix_args" yaml:"fix_args"`

	// Pattern is a regular expression with named groups
	// file, line, col, severity, code and message (line and message required)
	Pattern string `json:"pattern" mapstructure:"pattern" yaml:"pattern" validate:"required"`

	// DefaultSeverity applies when the pattern has no severity group
	DefaultSeverity string `json:"default_severity" mapstructure:"default_severity" yaml:"default_severity" validate:"omitempty,oneof=error warning info note"`

	Capabilities []string `json:"capabilities" mapstructure:"capabilities" yaml:"capabilities" validate:"dive,oneof=lint format typecheck"`
}

// AnalysisConfig holds file collection configuration
type AnalysisConfig struct {
	// ExcludePatterns are gitignore-style patterns excluded from every run
	ExcludePatterns []string `json:"exclude_patterns" mapstructure:"exclude_patterns" yaml:"exclude_patterns"`

	// RespectGitignore also excludes what the project's .gitignore excludes
	RespectGitignore bool `json:"respect_gitignore" mapstructure:"respect_gitignore" yaml:"respect_gitignore"`

	// Recursive controls whether to descend into directories
	Recursive bool `json:"recursive" mapstructure:"recursive" yaml:"recursive"`
}

// PerformanceConfig holds worker pool configuration
type PerformanceConfig struct {
	// MaxGoroutines bounds concurrent tool invocations (0 = number of CPUs)
	MaxGoroutines int `json:"max_goroutines" mapstructure:"max_goroutines" yaml:"max_goroutines" validate:"gte=0,lte=256"`

	// TimeoutSeconds bounds a whole run
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=0"`
}

// Workers returns the effective worker count
func (p PerformanceConfig) Workers() int {
	if p.MaxGoroutines <= 0 {
		return runtime.NumCPU()
	}
	return p.MaxGoroutines
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Dir      string `json:"dir" mapstructure:"dir" yaml:"dir"`
	TTLHours int    `json:"ttl_hours" mapstructure:"ttl_hours" yaml:"ttl_hours" validate:"gte=1"`
}

// TTL returns the entry lifetime
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// HooksConfig holds hook log configuration
type HooksConfig struct {
	LogDir       string `json:"log_dir" mapstructure:"log_dir" yaml:"log_dir"`
	ExcerptBytes int    `json:"excerpt_bytes" mapstructure:"excerpt_bytes" yaml:"excerpt_bytes" validate:"gte=0"`
}

// GateConfig holds commit gate configuration
type GateConfig struct {
	// Policy is "block" (a failing gate stops the commit) or "warn"
	Policy string `json:"policy" mapstructure:"policy" yaml:"policy" validate:"oneof=block warn"`

	// Mode is "pre-commit" (whole project) or "post-commit" (files in HEAD)
	Mode string `json:"mode" mapstructure:"mode" yaml:"mode" validate:"oneof=pre-commit post-commit"`

	// TimeoutSeconds is the combined budget for both streams
	TimeoutSeconds      int `json:"timeout_seconds" mapstructure:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=1"`
	CheckTimeoutSeconds int `json:"check_timeout_seconds" mapstructure:"check_timeout_seconds" yaml:"check_timeout_seconds" validate:"gte=1"`
	TestTimeoutSeconds  int `json:"test_timeout_seconds" mapstructure:"test_timeout_seconds" yaml:"test_timeout_seconds" validate:"gte=1"`

	// RunTests disables the test stream when false
	RunTests    bool     `json:"run_tests" mapstructure:"run_tests" yaml:"run_tests"`
	TestCommand []string `json:"test_command" mapstructure:"test_command" yaml:"test_command"`
}

// Timeouts returns the combined, check and test budgets
func (g GateConfig) Timeouts() (total, check, test time.Duration) {
	return time.Duration(g.TimeoutSeconds) * time.Second,
		time.Duration(g.CheckTimeoutSeconds) * time.Second,
		time.Duration(g.TestTimeoutSeconds) * time.Second
}

// OutputConfig holds configuration for output formatting
type OutputConfig struct {
	// Format specifies the output format: text, json, github, sarif
	Format string `json:"format" mapstructure:"format" yaml:"format" validate:"oneof=text json github sarif"`

	// ShowPerformance appends timing and throughput figures to text output
	ShowPerformance bool `json:"show_performance" mapstructure:"show_performance" yaml:"show_performance"`

	// Progress shows progress bars on interactive terminals
	Progress bool `json:"progress" mapstructure:"progress" yaml:"progress"`
}

// LoggingConfig holds diagnostic logger configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" mapstructure:"format" yaml:"format" validate:"oneof=console json"`
}

// MetricsConfig holds metrics export configuration
type MetricsConfig struct {
	// TextfilePath receives Prometheus text-format metrics after each run
	TextfilePath string `json:"textfile_path" mapstructure:"textfile_path" yaml:"textfile_path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Checkers: CheckersConfig{
			Enabled:    []string{constants.CheckerRuffFormat, constants.CheckerRuffLint, constants.CheckerMypy},
			LineLength: DefaultLineLength,
			Ruff: RuffConfig{
				ToolConfig:   ToolConfig{Executable: "ruff", IssueExitCodes: []int{1}},
				Select:       []string{},
				ExtendSelect: slices.Clone(DefaultRuffExtendSelect),
				Ignore:       slices.Clone(DefaultRuffIgnore),
			},
			Mypy: MypyConfig{
				ToolConfig:           ToolConfig{Executable: "mypy", IssueExitCodes: []int{1}},
				Strict:               true,
				IgnoreMissingImports: true,
			},
		},
		CustomCheckers: []CommandCheckerConfig{},
		Analysis: AnalysisConfig{
			ExcludePatterns:  slices.Clone(constants.DefaultExcludeDirs),
			RespectGitignore: true,
			Recursive:        true,
		},
		Performance: PerformanceConfig{
			MaxGoroutines:  0,
			TimeoutSeconds: 300,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Dir:      filepath.Join(constants.StateDirName, "cache"),
			TTLHours: DefaultCacheTTLHours,
		},
		Hooks: HooksConfig{
			LogDir:       constants.StateDirName,
			ExcerptBytes: DefaultExcerptBytes,
		},
		Gate: GateConfig{
			Policy:              "block",
			Mode:                "pre-commit",
			TimeoutSeconds:      int(constants.DefaultGateTimeout / time.Second),
			CheckTimeoutSeconds: int(constants.DefaultCheckTimeout / time.Second),
			TestTimeoutSeconds:  int(constants.DefaultTestTimeout / time.Second),
			RunTests:            true,
			TestCommand:         slices.Clone(DefaultTestCommand),
		},
		Output: OutputConfig{
			Format:   constants.OutputFormatText,
			Progress: true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from file or returns default config
func LoadConfig(configPath string) (*Config, error) {
	return LoadConfigWithTarget(configPath, "")
}

// LoadConfigWithTarget loads configuration with target path context.
// An empty configPath triggers discovery upward from targetPath.
func LoadConfigWithTarget(configPath string, targetPath string) (*Config, error) {
	if configPath == "" {
		configPath = findDefaultConfig(targetPath)
	}
	cfg, err := loadConfigFromFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg.root = resolveRoot(configPath, targetPath)
	return cfg, nil
}

// loadConfigFromFile layers defaults, the file (if any) and PYQC_* environment
// variables, then validates the result.
func loadConfigFromFile(configPath string) (*Config, error) {
	// Create a new viper instance to avoid race conditions
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(DefaultConfigYAML())); err != nil {
		return nil, fmt.Errorf("failed to seed defaults: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType(configType(configPath))
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix(constants.EnvVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.source = configPath

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func configType(path string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "yml", "yaml":
		return "yaml"
	case "":
		return "yaml"
	default:
		return ext
	}
}

// resolveRoot picks the directory relative state paths hang off: the config
// file's directory, else the target's directory, else the working directory.
func resolveRoot(configPath, targetPath string) string {
	if configPath != "" {
		if abs, err := filepath.Abs(filepath.Dir(configPath)); err == nil {
			return abs
		}
	}
	if targetPath != "" {
		if abs, err := filepath.Abs(targetPath); err == nil {
			if info, err := os.Stat(abs); err == nil && !info.IsDir() {
				abs = filepath.Dir(abs)
			}
			return abs
		}
	}
	wd, _ := os.Getwd()
	return wd
}

// Root returns the project root used for relative paths
func (c *Config) Root() string {
	return c.root
}

// SetRoot overrides the project root
func (c *Config) SetRoot(root string) {
	c.root = root
}

// Source returns the file this configuration came from, or "" for defaults
func (c *Config) Source() string {
	return c.source
}

// Resolve joins a relative path onto the project root
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.root == "" {
		return path
	}
	return filepath.Join(c.root, path)
}

// CacheDir returns the absolute cache directory
func (c *Config) CacheDir() string {
	return c.Resolve(c.Cache.Dir)
}

// LogDir returns the absolute hook log directory
func (c *Config) LogDir() string {
	return c.Resolve(c.Hooks.LogDir)
}

// searchConfigInDirectory searches for configuration files in a specific directory
func searchConfigInDirectory(dir string, candidates []string) string {
	for _, candidate := range candidates {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// configCandidates are looked for in every directory, in order
var configCandidates = []string{
	".pyqc.yaml",
	".pyqc.yml",
	"pyqc.yaml",
	"pyqc.yml",
	".pyqc.toml",
	"pyqc.json",
}

// findDefaultConfig walks from targetPath up to the filesystem root, then
// falls back to the working directory, the XDG config dir and PYQC_CONFIG.
func findDefaultConfig(targetPath string) string {
	if targetPath != "" {
		absPath, err := filepath.Abs(targetPath)
		if err == nil {
			info, err := os.Stat(absPath)
			if err == nil && !info.IsDir() {
				absPath = filepath.Dir(absPath)
			}

			volume := filepath.VolumeName(absPath)
			for dir := absPath; ; dir = filepath.Dir(dir) {
				if config := searchConfigInDirectory(dir, configCandidates); config != "" {
					return config
				}
				parent := filepath.Dir(dir)
				if parent == dir || dir == volume ||
					(volume != "" && dir == volume+string(filepath.Separator)) {
					break
				}
			}
		}
	}

	if config := searchConfigInDirectory(".", configCandidates); config != "" {
		return config
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		if config := searchConfigInDirectory(filepath.Join(xdgConfig, constants.ToolName), configCandidates); config != "" {
			return config
		}
	}

	if envConfig := os.Getenv("PYQC_CONFIG"); envConfig != "" {
		if _, err := os.Stat(envConfig); err == nil {
			return envConfig
		}
	}

	return ""
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration values
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q validation (value %v)", fieldPath(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return err
	}

	known := map[string]bool{
		constants.CheckerRuffLint:   true,
		constants.CheckerRuffFormat: true,
		constants.CheckerMypy:       true,
	}
	for _, cc := range c.CustomCheckers {
		if known[cc.Name] {
			return fmt.Errorf("custom_checkers: duplicate checker name %q", cc.Name)
		}
		if cc.Executable == "" {
			return fmt.Errorf("custom_checkers.%s: executable is required", cc.Name)
		}
		known[cc.Name] = true
	}

	seen := map[string]bool{}
	for _, name := range c.Checkers.Enabled {
		if !known[name] {
			return fmt.Errorf("checkers.enabled: unknown checker %q", name)
		}
		if seen[name] {
			return fmt.Errorf("checkers.enabled: %q listed twice", name)
		}
		seen[name] = true
	}

	if c.Gate.CheckTimeoutSeconds > c.Gate.TimeoutSeconds || c.Gate.TestTimeoutSeconds > c.Gate.TimeoutSeconds {
		return fmt.Errorf("gate: stream timeouts (%ds, %ds) must not exceed the combined timeout (%ds)",
			c.Gate.CheckTimeoutSeconds, c.Gate.TestTimeoutSeconds, c.Gate.TimeoutSeconds)
	}
	if c.Gate.RunTests && len(c.Gate.TestCommand) == 0 {
		return fmt.Errorf("gate.test_command cannot be empty when gate.run_tests is true")
	}

	return nil
}

// fieldPath converts "Config.Gate.Policy" into "gate.policy"
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}

// IsEnabled reports whether the named checker is enabled
func (c *Config) IsEnabled(name string) bool {
	return slices.Contains(c.Checkers.Enabled, name)
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}
