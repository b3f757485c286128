package history

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LimitsConfig overrides DefaultLimit globally and per connection, loaded
// from an optional YAML sidecar: a small document read with gopkg.in/yaml.v3
// and merged over a zero-value default.
type LimitsConfig struct {
	Default       int            `yaml:"default"`
	PerConnection map[string]int `yaml:"per_connection"`
}

// LimitFor resolves the history cap for connID: the per-connection
// override if one exists, else Default, else DefaultLimit.
func (c LimitsConfig) LimitFor(connID string) int {
	if n, ok := c.PerConnection[connID]; ok && n > 0 {
		return n
	}
	if c.Default > 0 {
		return c.Default
	}
	return DefaultLimit
}

// LoadLimitsConfig reads a YAML sidecar at path, returning a zero-value
// LimitsConfig (meaning "use DefaultLimit everywhere") if the file doesn't
// exist.
func LoadLimitsConfig(path string) (LimitsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LimitsConfig{}, nil
		}
		return LimitsConfig{}, fmt.Errorf("history: read limits config: %w", err)
	}
	var cfg LimitsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return LimitsConfig{}, fmt.Errorf("history: parse limits config: %w", err)
	}
	return cfg, nil
}
