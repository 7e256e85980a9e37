package app

import "errors"

// Config holds everything an App instance needs to run.
type Config struct {
	// ConfigPath is an .hcl file or a directory of .hcl files.
	ConfigPath string
	// Targets names the rules to build; empty means every rule.
	Targets []string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// Workers overrides the workspace worker count when positive.
	Workers int
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
