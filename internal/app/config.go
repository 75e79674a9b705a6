package app

import "errors"

// Config holds everything an App instance needs to execute one script run.
type Config struct {
	ScriptPath string // .atoms script file
	OutputDir  string // report + measurement artifacts

	ConfigPath    string // optional HCL run configuration
	InventoryPath string // optional YAML instrument inventory

	OnError       string // "abort" or "continue"; flag overrides file
	MaxIterations int

	LogFormat string
	LogLevel  string
}

// NewConfig validates the required fields.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ScriptPath == "" {
		return nil, errors.New("ScriptPath is a required configuration field and cannot be empty")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OutputDir is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
