// Package config loads toolchat configuration from YAML with environment
// variable overrides, and can watch the config file for live edits.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all toolchat configuration.
type Config struct {
	// LLM provider settings.
	LLM LLMConfig `yaml:"llm"`

	// Code sandbox settings.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Shell tool settings.
	Shell ShellConfig `yaml:"shell"`

	// Browser tool settings.
	Browser BrowserConfig `yaml:"browser"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model backend.
type LLMConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	Stream bool   `yaml:"stream"`
}

// SandboxConfig configures the code execution sandbox.
type SandboxConfig struct {
	Timeout     string `yaml:"timeout"`
	LogMemory   int    `yaml:"log_memory"`
	EchoConsole bool   `yaml:"echo_console"`
}

// ShellConfig configures the shell tool.
type ShellConfig struct {
	Enabled bool     `yaml:"enabled"`
	Timeout string   `yaml:"timeout"`
	Dir     string   `yaml:"dir"`
	Env     []string `yaml:"env"`
}

// BrowserConfig configures the browser tool.
type BrowserConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DebuggerURL string `yaml:"debugger_url"`
	Headless    bool   `yaml:"headless"`
	NavTimeout  string `yaml:"nav_timeout"`
}

// LoggingConfig configures the category file loggers.
type LoggingConfig struct {
	Debug      bool     `yaml:"debug"`
	Level      string   `yaml:"level"`
	Categories []string `yaml:"categories"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:  "gemini-2.0-flash",
			Stream: true,
		},
		Sandbox: SandboxConfig{
			Timeout:   "30s",
			LogMemory: 1000,
		},
		Shell: ShellConfig{
			Enabled: true,
			Timeout: "60s",
		},
		Browser: BrowserConfig{
			Enabled:    false,
			Headless:   true,
			NavTimeout: "30s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath is the conventional config location inside a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".toolchat", "config.yaml")
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variables over file values.
// TOOLCHAT_API_KEY wins over GEMINI_API_KEY.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("TOOLCHAT_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("TOOLCHAT_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("TOOLCHAT_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
		c.Browser.Enabled = true
	}
}

// Validate checks the fields that would otherwise fail deep inside a turn.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set GEMINI_API_KEY)")
	}
	for _, d := range []string{c.Sandbox.Timeout, c.Shell.Timeout, c.Browser.NavTimeout} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid duration %q: %w", d, err)
		}
	}
	return nil
}

// SandboxTimeout returns the parsed sandbox timeout.
func (c *Config) SandboxTimeout() time.Duration {
	return parseDuration(c.Sandbox.Timeout, 30*time.Second)
}

// ShellTimeout returns the parsed shell timeout.
func (c *Config) ShellTimeout() time.Duration {
	return parseDuration(c.Shell.Timeout, 60*time.Second)
}

// BrowserNavTimeout returns the parsed navigation timeout.
func (c *Config) BrowserNavTimeout() time.Duration {
	return parseDuration(c.Browser.NavTimeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
