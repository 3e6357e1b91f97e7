// Package config provides configuration loading and management for grangeat.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"grangeat/pkg/consistency"
	"grangeat/pkg/metrics"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Compute parameters
	Compute struct {
		// Devices is how many compute devices to spread work across.
		// Zero or a negative value uses one device per CPU core.
		Devices int `yaml:"devices"`
	} `yaml:"compute"`

	// Sampling parameters for the intermediate functions
	Sampling struct {
		// Accuracy scales the density of the line sampling grid of a projection
		Accuracy float64 `yaml:"accuracy"`

		// AngleIncrementDeg is the rotation step of the plane pencil between
		// two projections, in degrees
		AngleIncrementDeg float64 `yaml:"angleIncrementDeg"`

		// SubsampleRate keeps this fraction of the generated correspondences
		SubsampleRate float64 `yaml:"subsampleRate"`

		// DiffMethod selects the derivative filter applied along the distance
		// axis: central, next, five-point or spectral
		DiffMethod string `yaml:"diffMethod"`

		// StepSize is the half step in mm of the two-point derivative taken at
		// scattered coordinates
		StepSize float64 `yaml:"stepSize"`

		// ObliquityWeighting applies cosine weighting to projection images
		// before their line integrals are taken
		ObliquityWeighting bool `yaml:"obliquityWeighting"`
	} `yaml:"sampling"`

	// Grid parameters for the resident Radon volume
	Grid struct {
		// Azimuths is the number of azimuth samples
		Azimuths int `yaml:"azimuths"`

		// Polars is the number of polar samples
		Polars int `yaml:"polars"`

		// Distances is the number of plane distance samples
		Distances int `yaml:"distances"`

		// MaxDistance is the farthest plane distance from the origin in mm
		// covered by the grid. Zero fits the span to the scanned volume.
		MaxDistance float64 `yaml:"maxDistance"`
	} `yaml:"grid"`

	// Registration parameters
	Registration struct {
		// Metric names the inconsistency metric: l1, l2, rmse, correlation
		// or geman-mcclure
		Metric string `yaml:"metric"`

		// GemanScale is the soft outlier threshold of the geman-mcclure metric
		GemanScale float64 `yaml:"gemanScale"`

		// MaxEvaluations bounds the cost evaluations of a pose search.
		// Zero leaves the optimizer's own convergence criteria in charge.
		MaxEvaluations int `yaml:"maxEvaluations"`
	} `yaml:"registration"`

	// Output parameters
	Output struct {
		// Dir is the directory sinograms, Radon volumes and reports are written to
		Dir string `yaml:"dir"`

		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default compute parameters
	cfg.Compute.Devices = runtime.NumCPU() // Use all available cores by default

	// Set default sampling parameters
	cfg.Sampling.Accuracy = 1.0
	cfg.Sampling.AngleIncrementDeg = 0.01
	cfg.Sampling.SubsampleRate = 1.0
	cfg.Sampling.DiffMethod = consistency.DiffCentral.String()
	cfg.Sampling.StepSize = 0.5
	cfg.Sampling.ObliquityWeighting = true

	// Set default grid parameters
	cfg.Grid.Azimuths = 90
	cfg.Grid.Polars = 45
	cfg.Grid.Distances = 65
	cfg.Grid.MaxDistance = 0

	// Set default registration parameters
	cfg.Registration.Metric = "rmse"
	cfg.Registration.GemanScale = 1.0
	cfg.Registration.MaxEvaluations = 5000

	// Set default output parameters
	cfg.Output.Dir = "output"
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.Verbose = true

	return cfg
}

// DiffMethod resolves the configured derivative filter name.
func (c *Config) DiffMethod() (consistency.DiffMethod, error) {
	return consistency.ParseDiffMethod(c.Sampling.DiffMethod)
}

// AngleIncrement returns the pencil rotation step in radians.
func (c *Config) AngleIncrement() float64 {
	return c.Sampling.AngleIncrementDeg * math.Pi / 180
}

// Metric resolves the configured inconsistency metric name.
func (c *Config) Metric() (consistency.Metric, error) {
	switch c.Registration.Metric {
	case "l1":
		return metrics.L1{}, nil
	case "l2":
		return metrics.L2{}, nil
	case "rmse":
		return metrics.RMSE{}, nil
	case "correlation":
		return metrics.NegCorrelation{}, nil
	case "geman-mcclure":
		return metrics.GemanMcClure{Scale: c.Registration.GemanScale}, nil
	}
	return nil, fmt.Errorf("unknown metric %q", c.Registration.Metric)
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Reject values the engine cannot run with
	if _, err := cfg.DiffMethod(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	if _, err := cfg.Metric(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
