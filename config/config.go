// Package config loads and validates the edsl runtime configuration:
// the key-value cache location, remote cache endpoint, provider
// credentials, and runner defaults.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for a JobsRunner invocation.
type Config struct {
	Database    DatabaseConfig            `yaml:"database"`
	RemoteCache RemoteCacheConfig         `yaml:"remote_cache"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Runner      RunnerConfig              `yaml:"runner"`
	Logging     LoggingConfig             `yaml:"logging"`
}

// DatabaseConfig locates the persistent key-value cache.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteCacheConfig configures the optional remote cache sync target.
type RemoteCacheConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProviderConfig carries one LM provider's credential and default model.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// RunnerConfig mirrors SPEC_FULL.md §6's "Runner flags (also settable
// in YAML under runner:)".
type RunnerConfig struct {
	N               int           `yaml:"n"`
	StopOnException bool          `yaml:"stop_on_exception"`
	ProgressBar     bool          `yaml:"progress_bar"`
	RemoteBackups   bool          `yaml:"remote_backups"`
	ImmediateWrite  bool          `yaml:"immediate_write"`
	Timeout         time.Duration `yaml:"timeout"`
}

// LoggingConfig controls the ambient slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path as YAML, expands environment variables embedded in
// it, applies the EDSL_*/provider env overrides, fills defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = ".cache/data.db"
	}
	if cfg.RemoteCache.Timeout == 0 {
		cfg.RemoteCache.Timeout = 30 * time.Second
	}
	if cfg.Runner.N == 0 {
		cfg.Runner.N = 1
	}
	if cfg.Runner.Timeout == 0 {
		cfg.Runner.Timeout = 120 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("EDSL_DATABASE_PATH")); value != "" {
		cfg.Database.Path = value
	}
	if value := strings.TrimSpace(os.Getenv("EXPECTED_PARROT_CACHE_URL")); value != "" {
		cfg.RemoteCache.URL = value
	}
	if value := strings.TrimSpace(os.Getenv("EXPECTED_PARROT_API_KEY")); value != "" {
		cfg.RemoteCache.APIKey = value
	}

	for _, provider := range []string{"openai", "anthropic", "deep_infra"} {
		envVar := strings.ToUpper(provider) + "_API_KEY"
		value := strings.TrimSpace(os.Getenv(envVar))
		if value == "" {
			continue
		}
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]ProviderConfig)
		}
		entry := cfg.Providers[provider]
		entry.APIKey = value
		cfg.Providers[provider] = entry
	}

	if value := strings.TrimSpace(os.Getenv("EDSL_LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
	if value := strings.TrimSpace(os.Getenv("EDSL_LOG_FORMAT")); value != "" {
		cfg.Logging.Format = value
	}
}

// ValidationError reports every configuration problem found, rather
// than stopping at the first one.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	var issues []string

	if cfg.Runner.N < 1 {
		issues = append(issues, "runner.n must be >= 1")
	}
	if cfg.Runner.Timeout < 0 {
		issues = append(issues, "runner.timeout must be >= 0")
	}
	if !validLogLevel(cfg.Logging.Level) {
		issues = append(issues, `logging.level must be "debug", "info", "warn", or "error"`)
	}
	if !validLogFormat(cfg.Logging.Format) {
		issues = append(issues, `logging.format must be "json" or "text"`)
	}
	if cfg.RemoteCache.URL != "" && cfg.RemoteCache.APIKey == "" {
		issues = append(issues, "remote_cache.api_key is required when remote_cache.url is set")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validLogFormat(format string) bool {
	switch format {
	case "json", "text":
		return true
	default:
		return false
	}
}
