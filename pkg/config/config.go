// Package config loads and validates conductor configuration.
//
// Configuration is plain data: Load returns a Config value and callers pass
// it (or pieces of it) to the components they construct. Nothing in this
// package is process-global, so tests and embedded users can hold several
// configs side by side.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"conductor/pkg/adapter"
	"conductor/pkg/resilience/retry"
)

// AgentConfig selects and parameterizes the agent CLI.
type AgentConfig struct {
	// Capability picks the adapter: claude, codex, or generic.
	Capability string `yaml:"capability"`

	// Binary and Args configure the generic adapter; ignored otherwise.
	Binary string   `yaml:"binary,omitempty"`
	Args   []string `yaml:"args,omitempty"`

	Model string `yaml:"model,omitempty"`

	// RequiredEnv lists secret-shaped environment variables the agent CLI
	// still needs (everything else secret-shaped is filtered out).
	RequiredEnv []string `yaml:"required_env,omitempty"`
}

// RetryConfig controls backoff between attempts. Delays are integer
// milliseconds because yaml.v3 does not parse duration strings.
type RetryConfig struct {
	MaxRetries     int `yaml:"max_retries"`
	InitialDelayMS int `yaml:"initial_delay_ms"`
	MaxDelayMS     int `yaml:"max_delay_ms"`
}

// Policy converts the file representation into a retry.Config.
func (r RetryConfig) Policy() retry.Config {
	return retry.Config{
		MaxRetries:   r.MaxRetries,
		InitialDelay: time.Duration(r.InitialDelayMS) * time.Millisecond,
		MaxDelay:     time.Duration(r.MaxDelayMS) * time.Millisecond,
	}
}

// RateLimitConfig bounds agent invocations per rolling window.
type RateLimitConfig struct {
	MaxCalls      int `yaml:"max_calls"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Window returns the configured window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Config is the full conductor configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// ProjectRoot is the directory plans run against.
	ProjectRoot string `yaml:"project_root"`

	// DBPath locates the execution-history database. Empty disables history.
	DBPath string `yaml:"db_path,omitempty"`

	// PrometheusURL enables the metrics query service when set.
	PrometheusURL string `yaml:"prometheus_url,omitempty"`
}

// Default returns the configuration used when no config file is given.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			Capability: string(adapter.CapabilityClaude),
		},
		Retry: RetryConfig{
			MaxRetries:     retry.DefaultConfig.MaxRetries,
			InitialDelayMS: int(retry.DefaultConfig.InitialDelay / time.Millisecond),
			MaxDelayMS:     int(retry.DefaultConfig.MaxDelay / time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			MaxCalls:      30,
			WindowSeconds: 60,
		},
		ProjectRoot: ".",
		DBPath:      ".conductor/history.db",
	}
}

// Load reads a YAML config file, fills defaults, applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults restores defaults for fields the file zeroed out.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Agent.Capability == "" {
		c.Agent.Capability = def.Agent.Capability
	}
	if c.Retry == (RetryConfig{}) {
		c.Retry = def.Retry
	}
	if c.RateLimit.MaxCalls == 0 && c.RateLimit.WindowSeconds == 0 {
		c.RateLimit = def.RateLimit
	}
	if c.ProjectRoot == "" {
		c.ProjectRoot = def.ProjectRoot
	}
}

// applyEnvOverrides lets deployment environments override file settings
// without editing the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CONDUCTOR_MODEL"); v != "" {
		c.Agent.Model = v
	}
	if v := os.Getenv("CONDUCTOR_PROJECT_ROOT"); v != "" {
		c.ProjectRoot = v
	}
	if v := os.Getenv("CONDUCTOR_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CONDUCTOR_PROMETHEUS_URL"); v != "" {
		c.PrometheusURL = v
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch adapter.Capability(c.Agent.Capability) {
	case adapter.CapabilityClaude, adapter.CapabilityCodex:
	case adapter.CapabilityGeneric:
		if c.Agent.Binary == "" {
			return fmt.Errorf("agent.binary is required for the generic capability")
		}
	default:
		return fmt.Errorf("unknown agent capability: %q", c.Agent.Capability)
	}

	if _, err := retry.NewPolicy(c.Retry.Policy(), nil); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}
	if c.RateLimit.MaxCalls <= 0 {
		return fmt.Errorf("rate_limit.max_calls must be positive, got %d", c.RateLimit.MaxCalls)
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be positive, got %d", c.RateLimit.WindowSeconds)
	}
	if c.ProjectRoot == "" {
		return fmt.Errorf("project_root must not be empty")
	}
	return nil
}
