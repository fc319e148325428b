// Package config provides configuration loading and management for mvsalign.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mvsalign/internal/models"
	"mvsalign/pkg/alignment"
	"mvsalign/pkg/camera"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input describes where and how the two camera systems are stored
	Input struct {
		// Format1 is the on-disk format of the first camera system
		Format1 string `yaml:"format1"`

		// Format2 is the on-disk format of the second camera system
		Format2 string `yaml:"format2"`

		// MVSNetSuffix selects camera files inside an mvsnet directory
		MVSNetSuffix string `yaml:"mvsnetSuffix"`

		// COLMAPLogName is the log file read when a colmap path is a directory
		COLMAPLogName string `yaml:"colmapLogName"`
	} `yaml:"input"`

	// Alignment parameters
	Alignment struct {
		// ScaleMethod is "median" or "baseline"
		ScaleMethod string `yaml:"scaleMethod"`

		// Pairing is "id" or "position"
		Pairing string `yaml:"pairing"`

		// BaselineIndex is the second camera of the baseline scale method
		BaselineIndex int `yaml:"baselineIndex"`

		// MinCameras is the fewest corresponding cameras accepted
		MinCameras int `yaml:"minCameras"`

		// ConditionWarnRatio is the collinearity warning threshold
		ConditionWarnRatio float64 `yaml:"conditionWarnRatio"`
	} `yaml:"alignment"`

	// Output parameters
	Output struct {
		// ReportFile, when set, receives a per-camera residual CSV
		ReportFile string `yaml:"reportFile"`

		// PlotFile, when set, receives a PNG of the aligned centers
		PlotFile string `yaml:"plotFile"`

		// PlotDir, when set, receives one PNG per projection axis
		PlotDir string `yaml:"plotDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.Format1 = string(models.FormatMVSNet)
	cfg.Input.Format2 = string(models.FormatCOLMAP)
	cfg.Input.MVSNetSuffix = camera.DefaultMVSNetSuffix
	cfg.Input.COLMAPLogName = camera.DefaultCOLMAPLogName

	params := alignment.DefaultParams()
	cfg.Alignment.ScaleMethod = string(params.ScaleMethod)
	cfg.Alignment.Pairing = string(params.Pairing)
	cfg.Alignment.BaselineIndex = params.BaselineIndex
	cfg.Alignment.MinCameras = params.MinCameras
	cfg.Alignment.ConditionWarnRatio = params.ConditionWarnRatio

	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// Validate checks that enumerated values are recognized.
func (c *Config) Validate() error {
	if _, err := models.ParseFormat(c.Input.Format1); err != nil {
		return fmt.Errorf("input.format1: %w", err)
	}
	if _, err := models.ParseFormat(c.Input.Format2); err != nil {
		return fmt.Errorf("input.format2: %w", err)
	}
	switch alignment.ScaleMethod(c.Alignment.ScaleMethod) {
	case alignment.ScaleMedian, alignment.ScaleBaseline:
	default:
		return fmt.Errorf("alignment.scaleMethod: unknown method %q", c.Alignment.ScaleMethod)
	}
	switch alignment.Pairing(c.Alignment.Pairing) {
	case alignment.PairByID, alignment.PairByPosition:
	default:
		return fmt.Errorf("alignment.pairing: unknown mode %q", c.Alignment.Pairing)
	}
	if c.Alignment.BaselineIndex < 1 {
		return fmt.Errorf("alignment.baselineIndex must be positive, got %d", c.Alignment.BaselineIndex)
	}
	if c.Alignment.MinCameras < 3 {
		return fmt.Errorf("alignment.minCameras must be at least 3, got %d", c.Alignment.MinCameras)
	}
	return nil
}

// ParserOptions converts the input section into camera parser options.
func (c *Config) ParserOptions() camera.Options {
	return camera.Options{
		MVSNetSuffix:  c.Input.MVSNetSuffix,
		COLMAPLogName: c.Input.COLMAPLogName,
	}
}

// AlignmentParams converts the alignment section into estimator parameters.
func (c *Config) AlignmentParams() *alignment.Params {
	return &alignment.Params{
		ScaleMethod:        alignment.ScaleMethod(c.Alignment.ScaleMethod),
		Pairing:            alignment.Pairing(c.Alignment.Pairing),
		BaselineIndex:      c.Alignment.BaselineIndex,
		MinCameras:         c.Alignment.MinCameras,
		ConditionWarnRatio: c.Alignment.ConditionWarnRatio,
	}
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
