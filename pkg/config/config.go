// Package config loads and validates the offload configuration.
// Values come from ~/.offload/config.yaml with environment variables
// taking precedence for API keys. Thresholds are configuration, not
// hard-wired behavior.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Delegation   DelegationConfig   `yaml:"delegation"`
	Local        LocalConfig        `yaml:"local"`
	Hosted       HostedConfig       `yaml:"hosted"`
	Distribution DistributionConfig `yaml:"distribution"`
	Cache        CacheConfig        `yaml:"cache"`
	Pricing      PricingConfig      `yaml:"pricing,omitempty"`
	Debug        bool               `yaml:"debug,omitempty"`
}

// DelegationConfig holds the delegation engine thresholds.
type DelegationConfig struct {
	// CapacityTokens is the hosted-context ceiling used for pressure
	// computation. Must be > 0.
	CapacityTokens int `yaml:"capacity_tokens"`
	// EscalationTokens bumps a task one complexity class up when its
	// estimate exceeds it.
	EscalationTokens int `yaml:"escalation_tokens"`
	// LargeTaskTokens marks analytical tasks as bulk work better run
	// locally regardless of pressure.
	LargeTaskTokens int `yaml:"large_task_tokens"`
	// HybridMinTokens is the volume at which analytical/strategic
	// tasks split into a local bulk pass plus hosted synthesis.
	HybridMinTokens int `yaml:"hybrid_min_tokens"`
	// PressureThreshold is the hosted-usage pressure above which
	// small analytical tasks move to the local channel.
	PressureThreshold float64 `yaml:"pressure_threshold"`
	// LocalTools lists the capability tags the local channel can
	// satisfy. Tasks requiring anything else stay hosted.
	LocalTools []string `yaml:"local_tools"`
}

// LocalConfig describes the locally reachable model endpoint.
type LocalConfig struct {
	Endpoint         string `yaml:"endpoint"`
	Model            string `yaml:"model"`
	HealthTimeoutMS  int    `yaml:"health_timeout_ms"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

// HostedConfig selects the hosted provider and model.
type HostedConfig struct {
	Provider        string `yaml:"provider"` // anthropic, openai, google
	Model           string `yaml:"model"`
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	GoogleAPIKey    string `yaml:"-"`
}

// DistributionConfig holds the task distributor settings.
type DistributionConfig struct {
	// Enabled gates the whole local-processing feature. When false,
	// every task routes to the main channel.
	Enabled *bool `yaml:"enabled,omitempty"`
	// ImportanceThreshold routes tasks at or above it to main.
	ImportanceThreshold float64 `yaml:"importance_threshold"`
	// MaxConcurrent caps simultaneous local tasks.
	MaxConcurrent int `yaml:"max_concurrent"`
	// LocalTaskTypes is the whitelist of buckets suitable for the
	// local channel.
	LocalTaskTypes []string `yaml:"local_task_types"`
	// ResourcePools caps per-category acquisitions (finer-grained
	// than the single slot count).
	ResourcePools map[string]int `yaml:"resource_pools,omitempty"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	TTLHours int    `yaml:"ttl_hours"`
	Path     string `yaml:"path,omitempty"`
}

// PricingConfig maps model -> per-1k token pricing, used for the
// hosted cost estimate in execution stats.
type PricingConfig map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// fileKeys represents the api_keys block of config.yaml.
type fileKeys struct {
	APIKeys struct {
		Anthropic string `yaml:"anthropic"`
		OpenAI    string `yaml:"openai"`
		Google    string `yaml:"google"`
	} `yaml:"api_keys"`
}

// Default returns the default configuration. All values satisfy
// Validate.
func Default() *Config {
	cfg := &Config{
		Delegation: DelegationConfig{
			CapacityTokens:    200_000,
			EscalationTokens:  50_000,
			LargeTaskTokens:   25_000,
			HybridMinTokens:   100_000,
			PressureThreshold: 0.5,
			LocalTools:        []string{"file_operations", "code_search", "shell"},
		},
		Local: LocalConfig{
			Endpoint:         "http://localhost:11434/v1",
			Model:            "qwen2.5-coder",
			HealthTimeoutMS:  3000,
			RequestTimeoutMS: 120_000,
		},
		Hosted: HostedConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
		},
		Distribution: DistributionConfig{
			ImportanceThreshold: 0.3,
			MaxConcurrent:       2,
			LocalTaskTypes: []string{
				"documentation", "formatting", "simple_analysis", "data_transformation",
			},
			ResourcePools: map[string]int{
				"memory_ops":   3,
				"analysis":     2,
				"optimization": 1,
			},
		},
		Cache: CacheConfig{TTLHours: 24},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from ~/.offload/config.yaml, falling back
// to defaults when the file is absent. Environment variables take
// precedence for API keys.
func Load() (*Config, error) {
	dir, err := configDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return LoadFile(filepath.Join(dir, "config.yaml"))
}

// LoadFile reads configuration from a specific path. A missing file
// yields defaults; a malformed file is an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		var keys fileKeys
		_ = yaml.Unmarshal(data, &keys)
		cfg.Hosted.AnthropicAPIKey = keys.APIKeys.Anthropic
		cfg.Hosted.OpenAIAPIKey = keys.APIKeys.OpenAI
		cfg.Hosted.GoogleAPIKey = keys.APIKeys.Google
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.Hosted.AnthropicAPIKey = getEnvOrDefault("ANTHROPIC_API_KEY", cfg.Hosted.AnthropicAPIKey)
	cfg.Hosted.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", cfg.Hosted.OpenAIAPIKey)
	cfg.Hosted.GoogleAPIKey = getEnvOrDefault("GOOGLE_API_KEY", cfg.Hosted.GoogleAPIKey)

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on configuration errors so they surface at
// construction, not at decision time.
func (c *Config) Validate() error {
	if c.Delegation.CapacityTokens <= 0 {
		return fmt.Errorf("config: capacity_tokens must be > 0, got %d", c.Delegation.CapacityTokens)
	}
	if c.Delegation.PressureThreshold < 0 || c.Delegation.PressureThreshold > 1 {
		return fmt.Errorf("config: pressure_threshold must be in [0,1], got %g", c.Delegation.PressureThreshold)
	}
	if c.Distribution.ImportanceThreshold < 0 || c.Distribution.ImportanceThreshold > 1 {
		return fmt.Errorf("config: importance_threshold must be in [0,1], got %g", c.Distribution.ImportanceThreshold)
	}
	if c.Distribution.MaxConcurrent <= 0 {
		return fmt.Errorf("config: max_concurrent must be > 0, got %d", c.Distribution.MaxConcurrent)
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("config: cache ttl_hours must be > 0, got %d", c.Cache.TTLHours)
	}
	return nil
}

// DistributionEnabled reports the local-processing flag, defaulting
// to enabled.
func (c *Config) DistributionEnabled() bool {
	return c.Distribution.Enabled == nil || *c.Distribution.Enabled
}

// CachePath returns the configured cache path, or the default under
// the config directory.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return c.Cache.Path, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

func applyDefaults(cfg *Config) {
	if cfg.Delegation.EscalationTokens == 0 {
		cfg.Delegation.EscalationTokens = 50_000
	}
	if cfg.Delegation.LargeTaskTokens == 0 {
		cfg.Delegation.LargeTaskTokens = 25_000
	}
	if cfg.Delegation.HybridMinTokens == 0 {
		cfg.Delegation.HybridMinTokens = 100_000
	}
	if cfg.Local.HealthTimeoutMS == 0 {
		cfg.Local.HealthTimeoutMS = 3000
	}
	if cfg.Local.RequestTimeoutMS == 0 {
		cfg.Local.RequestTimeoutMS = 120_000
	}
	if cfg.Hosted.Provider == "" {
		cfg.Hosted.Provider = "anthropic"
	}
	if cfg.Distribution.Enabled == nil {
		enabled := true
		cfg.Distribution.Enabled = &enabled
	}
}

func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".offload")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
