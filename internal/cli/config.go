package cli

import (
	"encoding/json"
	"os"

	"github.com/xyproto/env/v2"

	"github.com/orizon-lang/flowc/internal/codegen"
	ferrors "github.com/orizon-lang/flowc/internal/errors"
)

// Environment variables that override the configuration file.
const (
	EnvSplitDegree   = "FLOWC_SPLIT_DEGREE"
	EnvWorkers       = "FLOWC_WORKERS"
	EnvTargetVersion = "FLOWC_TARGET_VERSION"
	EnvDebugComments = "FLOWC_DEBUG_COMMENTS"
	EnvConcurrency   = "FLOWC_CONCURRENCY"
	EnvVerbose       = "FLOWC_VERBOSE"
	EnvDebug         = "FLOWC_DEBUG"
)

// Config represents the configuration of the flowc tools
type Config struct {
	Verbose    bool   `json:"verbose"`
	Debug      bool   `json:"debug"`
	ConfigFile string `json:"config_file"`
	WorkDir    string `json:"work_dir"`

	// SplitDegree applies to loops that do not set one; 0 disables
	// splitting.
	SplitDegree int `json:"split_degree"`
	// Workers sizes the simulator's worker pool; 0 uses every CPU.
	Workers int `json:"workers"`
	// TargetVersion is the task engine version to emit for.
	TargetVersion string `json:"target_version"`
	DebugComments bool   `json:"debug_comments"`
	// Concurrency bounds how many inputs compile at once.
	Concurrency int `json:"concurrency"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		WorkDir:       ".",
		SplitDegree:   16,
		TargetVersion: codegen.DefaultTarget,
		Concurrency:   4,
	}
}

// LoadConfig loads configuration from file. A missing file yields the
// defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}

		return nil, ferrors.Wrapf(err, "failed to read config file")
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, ferrors.InvalidConfig(configPath, "failed to parse config file: %v", err)
	}

	config.ConfigFile = configPath

	return config, nil
}

// ApplyEnv overrides settings from FLOWC_* environment variables.
func (c *Config) ApplyEnv() {
	if env.Has(EnvSplitDegree) {
		c.SplitDegree = env.Int(EnvSplitDegree, c.SplitDegree)
	}

	if env.Has(EnvWorkers) {
		c.Workers = env.Int(EnvWorkers, c.Workers)
	}

	if env.Has(EnvConcurrency) {
		c.Concurrency = env.Int(EnvConcurrency, c.Concurrency)
	}

	c.TargetVersion = env.Str(EnvTargetVersion, c.TargetVersion)

	if env.Has(EnvDebugComments) {
		c.DebugComments = env.Bool(EnvDebugComments)
	}

	if env.Has(EnvVerbose) {
		c.Verbose = env.Bool(EnvVerbose)
	}

	if env.Has(EnvDebug) {
		c.Debug = env.Bool(EnvDebug)
	}
}

// Validate checks the settings.
func (c *Config) Validate() error {
	// A degree of 1 would re-register the whole range forever.
	if c.SplitDegree < 0 || c.SplitDegree == 1 {
		return ferrors.InvalidConfig("split_degree", "must be 0 or at least 2, got %d", c.SplitDegree)
	}

	if c.Workers < 0 {
		return ferrors.InvalidConfig("workers", "must not be negative, got %d", c.Workers)
	}

	if c.Concurrency < 1 {
		return ferrors.InvalidConfig("concurrency", "must be at least 1, got %d", c.Concurrency)
	}

	return codegen.CheckTarget(c.TargetVersion)
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return ferrors.Wrapf(err, "failed to marshal config")
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return ferrors.Wrapf(err, "failed to write config file")
	}

	return nil
}
