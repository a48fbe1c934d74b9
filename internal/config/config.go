// Package config defines the application configuration and its loader.
package config

import (
	"encoding/json"
	"fmt"
)

// Config is the main application configuration.
type Config struct {
	// Provider selects the model backend.
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`

	// Session bounds the conversation engine.
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Agents configures sub-agent execution.
	Agents AgentsConfig `json:"agents" mapstructure:"agents"`

	// Permissions configures the approval gate.
	Permissions PermissionsConfig `json:"permissions" mapstructure:"permissions"`

	// Tasks configures the task board.
	Tasks TasksConfig `json:"tasks" mapstructure:"tasks"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Logging configures the logger.
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// WorkspacePath is the root directory tools operate in. Empty means
	// the current working directory.
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`

	// DataDir holds all persisted state. Empty means ~/.coda.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ProviderConfig selects and credentials the model backend.
type ProviderConfig struct {
	Name        string  `json:"name" mapstructure:"name"` // anthropic, openai
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// SessionConfig bounds conversation sessions.
type SessionConfig struct {
	MaxRounds  int    `json:"max_rounds" mapstructure:"max_rounds"`
	MaxRetries int    `json:"max_retries" mapstructure:"max_retries"`
	HistoryDir string `json:"history_dir" mapstructure:"history_dir"`
}

// AgentsConfig configures sub-agent execution.
type AgentsConfig struct {
	DefsDir         string `json:"defs_dir" mapstructure:"defs_dir"`
	RegistryPath    string `json:"registry_path" mapstructure:"registry_path"`
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
	RetentionHours  int    `json:"retention_hours" mapstructure:"retention_hours"`
}

// PermissionsConfig configures the approval gate.
type PermissionsConfig struct {
	StorePath string `json:"store_path" mapstructure:"store_path"`
}

// TasksConfig configures the task board.
type TasksConfig struct {
	DBPath string `json:"db_path" mapstructure:"db_path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:        "anthropic",
			Model:       "claude-sonnet-4",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Session: SessionConfig{
			MaxRounds:  10,
			MaxRetries: 3,
		},
		Agents: AgentsConfig{
			CleanupSchedule: "@hourly",
			RetentionHours:  7 * 24,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "anthropic", "openai":
	case "":
		return fmt.Errorf("provider name is required")
	default:
		return fmt.Errorf("invalid provider %s (must be: anthropic, openai)", c.Provider.Name)
	}

	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider api_key is required")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider model is required")
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		return fmt.Errorf("provider temperature must be between 0 and 2")
	}

	if c.Session.MaxRounds <= 0 {
		return fmt.Errorf("session max_rounds must be positive")
	}
	if c.Session.MaxRetries <= 0 {
		return fmt.Errorf("session max_retries must be positive")
	}

	if c.Agents.RetentionHours < 0 {
		return fmt.Errorf("agents retention_hours cannot be negative")
	}

	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics addr is required when metrics are enabled")
	}

	return nil
}
