package service

import (
	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/config"
)

// ConfigOverrides are command-line values that take precedence over the file
type ConfigOverrides struct {
	OutputFormat    string
	ShowPerformance bool
	Workers         int
	NoCache         bool
	GatePolicy      string
	Verbose         bool
}

// ConfigurationLoaderImpl loads and merges pyqc configuration
type ConfigurationLoaderImpl struct{}

// NewConfigurationLoader creates a new configuration loader service
func NewConfigurationLoader() *ConfigurationLoaderImpl {
	return &ConfigurationLoaderImpl{}
}

// LoadConfig loads configuration from configPath, or discovers it upward
// from targetPath when configPath is empty. Every failure is a
// configuration error.
func (c *ConfigurationLoaderImpl) LoadConfig(configPath, targetPath string) (*config.Config, error) {
	cfg, err := config.LoadConfigWithTarget(configPath, targetPath)
	if err != nil {
		return nil, domain.NewConfigError(configPath, "failed to load configuration", err)
	}
	return cfg, nil
}

// MergeConfig applies overrides onto cfg and re-validates the result
func (c *ConfigurationLoaderImpl) MergeConfig(cfg *config.Config, o ConfigOverrides) (*config.Config, error) {
	merged := *cfg

	if o.OutputFormat != "" {
		merged.Output.Format = o.OutputFormat
	}
	// Flags can only switch these on
	if o.ShowPerformance {
		merged.Output.ShowPerformance = true
	}
	if o.NoCache {
		merged.Cache.Enabled = false
	}
	if o.Workers > 0 {
		merged.Performance.MaxGoroutines = o.Workers
	}
	if o.GatePolicy != "" {
		merged.Gate.Policy = o.GatePolicy
	}
	if o.Verbose {
		merged.Logging.Level = "debug"
	}

	if err := merged.Validate(); err != nil {
		return nil, domain.NewConfigError(cfg.Source(), "invalid option", err)
	}
	return &merged, nil
}
