package config

import (
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	defaultYAMLOnce sync.Once
	defaultYAML     string
)

// DefaultConfigYAML returns DefaultConfig serialized as YAML. It seeds every
// viper instance so that environment overrides apply to every known key.
func DefaultConfigYAML() string {
	defaultYAMLOnce.Do(func() {
		data, err := yaml.Marshal(DefaultConfig())
		if err != nil {
			// DefaultConfig is a plain struct literal; marshalling cannot fail
			panic(err)
		}
		defaultYAML = string(data)
	})
	return defaultYAML
}

// LoadDefaultConfig parses the serialized defaults back into a Config
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(DefaultConfigYAML()), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
