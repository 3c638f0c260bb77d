// Package config handles configuration loading for foreman.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for foreman.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Health    HealthConfig    `mapstructure:"health"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	State     StateConfig     `mapstructure:"state"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseAWSBedrock routes API-backend calls through AWS Bedrock.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// BackendConfig holds the default backend selection.
type BackendConfig struct {
	// Default is the backend used when neither the prompt nor the repo
	// config names one.
	Default string `mapstructure:"default"`
	// Model is the optional default model override.
	Model string `mapstructure:"model"`
}

// LimitsConfig holds safety policy settings.
type LimitsConfig struct {
	OrchestratorMaxDepth int `mapstructure:"orchestrator_max_depth"`
	AgentMaxDepth        int `mapstructure:"agent_max_depth"`
	MaxConcurrentWorkers int `mapstructure:"max_concurrent_workers"`
}

// HealthConfig holds worker health monitor thresholds.
type HealthConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	IdleAfter     time.Duration `mapstructure:"idle_after"`
	ProgressAfter time.Duration `mapstructure:"progress_after"`
	StuckAfter    time.Duration `mapstructure:"stuck_after"`
}

// WorkspaceConfig holds worktree provisioning settings.
type WorkspaceConfig struct {
	// BaseDir is where task worktrees are created.
	BaseDir string `mapstructure:"base_dir"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// DBPath overrides the default database location. Empty uses the
	// XDG data path.
	DBPath string `mapstructure:"db_path"`
	// Disabled turns off persistence entirely.
	Disabled bool `mapstructure:"disabled"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.foreman.yaml in current directory or parent)
// 3. User config (~/.config/foreman/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures built-in default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("backend.default", "claude")
	v.SetDefault("backend.model", "")

	v.SetDefault("limits.orchestrator_max_depth", 2)
	v.SetDefault("limits.agent_max_depth", 1)
	v.SetDefault("limits.max_concurrent_workers", 8)

	v.SetDefault("health.tick_interval", "3s")
	v.SetDefault("health.idle_after", "30s")
	v.SetDefault("health.progress_after", "5m")
	v.SetDefault("health.stuck_after", "12m")

	v.SetDefault("workspace.base_dir", "")
	v.SetDefault("state.db_path", "")
	v.SetDefault("state.disabled", false)
}

// getUserConfigDir returns the XDG config directory for foreman.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "foreman")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "foreman")
	}
	return filepath.Join(home, ".config", "foreman")
}

// findProjectConfig searches for .foreman.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".foreman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Default: "claude",
		},
		Limits: LimitsConfig{
			OrchestratorMaxDepth: 2,
			AgentMaxDepth:        1,
			MaxConcurrentWorkers: 8,
		},
		Health: HealthConfig{
			TickInterval:  3 * time.Second,
			IdleAfter:     30 * time.Second,
			ProgressAfter: 5 * time.Minute,
			StuckAfter:    12 * time.Minute,
		},
	}
}
