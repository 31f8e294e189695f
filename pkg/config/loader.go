package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed flows.yaml
var defaultFlows []byte

// DefaultFlowConfig parses the embedded flows.yaml.
func DefaultFlowConfig() (*FlowConfig, error) {
	return ParseFlowConfig(defaultFlows)
}

// LoadFlowConfig reads flows from filePath, or the embedded defaults when it is empty.
func LoadFlowConfig(filePath string) (*FlowConfig, error) {
	if filePath == "" {
		return DefaultFlowConfig()
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read flows file '%s': %w", filePath, err)
	}
	cfg, err := ParseFlowConfig(data)
	if err != nil {
		return nil, fmt.Errorf("flows file '%s': %w", filePath, err)
	}
	return cfg, nil
}

func ParseFlowConfig(data []byte) (*FlowConfig, error) {
	var cfg FlowConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}
