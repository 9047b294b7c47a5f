// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for prdflow.
type Config struct {
	PRDPath      string        `mapstructure:"prd" yaml:"prd"`
	PlanDir      string        `mapstructure:"plan_dir" yaml:"plan_dir"`
	AgentCommand string        `mapstructure:"agent_command" yaml:"agent_command"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile      string        `mapstructure:"log_file" yaml:"log_file"`
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("prdflow")

	// Set defaults (prd has no default - it's required)
	v.SetDefault("plan_dir", "plan")
	v.SetDefault("agent_command", "opencode")
	v.SetDefault("wait_timeout", "60s")
	v.SetDefault("poll_interval", "500ms")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	// Setup ENV binding with PRDFLOW_ prefix
	v.SetEnvPrefix("PRDFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit ENV bindings for better parsing of non-string values
	// Note: BindEnv errors are very rare (only invalid key names), but we check them anyway
	if err := v.BindEnv("prd", "PRDFLOW_PRD"); err != nil {
		return nil, fmt.Errorf("binding prd env: %w", err)
	}
	if err := v.BindEnv("plan_dir", "PRDFLOW_PLAN_DIR"); err != nil {
		return nil, fmt.Errorf("binding plan_dir env: %w", err)
	}
	if err := v.BindEnv("agent_command", "PRDFLOW_AGENT_COMMAND"); err != nil {
		return nil, fmt.Errorf("binding agent_command env: %w", err)
	}
	if err := v.BindEnv("wait_timeout", "PRDFLOW_WAIT_TIMEOUT"); err != nil {
		return nil, fmt.Errorf("binding wait_timeout env: %w", err)
	}
	if err := v.BindEnv("poll_interval", "PRDFLOW_POLL_INTERVAL"); err != nil {
		return nil, fmt.Errorf("binding poll_interval env: %w", err)
	}
	if err := v.BindEnv("log_level", "PRDFLOW_LOG_LEVEL"); err != nil {
		return nil, fmt.Errorf("binding log_level env: %w", err)
	}
	if err := v.BindEnv("log_file", "PRDFLOW_LOG_FILE"); err != nil {
		return nil, fmt.Errorf("binding log_file env: %w", err)
	}

	// Load global config first (if exists)
	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	// Merge project config on top (if exists)
	projectPath := ProjectPath()
	if fileExists(projectPath) {
		// Need to set config file explicitly for merge
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/prdflow/prdflow.yml or $XDG_CONFIG_HOME/prdflow/prdflow.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "prdflow", "prdflow.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "prdflow", "prdflow.yml")
}

// ProjectPath returns the project-local config path.
// Returns ./prdflow.yml in the current working directory.
func ProjectPath() string {
	return "prdflow.yml"
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()

	// Create parent directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Write file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	path := ProjectPath()

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Write file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
