// Package config loads gateway configuration from a YAML file. Secrets
// (upstream key, DSNs) are never stored in the file; the file names the
// environment variables that carry them.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Governor GovernorConfig `yaml:"governor"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address, e.g. ":8080"
}

type UpstreamConfig struct {
	BaseURL          string `yaml:"base_url"`           // e.g. "https://api.openai.com/v1"
	APIKeyEnv        string `yaml:"api_key_env"`        // e.g. "OPENAI_API_KEY"
	TimeoutSeconds   int    `yaml:"timeout_seconds"`    // materialized-call timeout
	MaxResponseBytes int64  `yaml:"max_response_bytes"` // response read cap
}

// GovernorConfig mirrors policy.Config with nil meaning "use default",
// so a partial YAML file only overrides what it names.
type GovernorConfig struct {
	Enabled            *bool  `yaml:"enabled"`
	Domain             string `yaml:"domain"` // general | wearables | bci | therapy
	Mode               string `yaml:"mode"`   // block | warn | log
	InjectSystemPrompt *bool  `yaml:"inject_system_prompt"`
	ScoreInput         *bool  `yaml:"score_input"`
	ScoreOutput        *bool  `yaml:"score_output"`
	LogViolations      *bool  `yaml:"log_violations"`
	RateLimit          *int   `yaml:"rate_limit"`
}

type AuthConfig struct {
	Mode            string `yaml:"mode"`             // none | static | postgres
	PostgresDSNEnv  string `yaml:"postgres_dsn_env"` // e.g. "POSTGRES_DSN"
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type StorageConfig struct {
	ClickHouseDSNEnv string `yaml:"clickhouse_dsn_env"` // e.g. "CLICKHOUSE_DSN"
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns the default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Upstream.APIKeyEnv == "" {
		cfg.Upstream.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Upstream.TimeoutSeconds <= 0 {
		cfg.Upstream.TimeoutSeconds = 60
	}
	if cfg.Upstream.MaxResponseBytes <= 0 {
		cfg.Upstream.MaxResponseBytes = 4 * 1024 * 1024
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = "none"
	}
	if cfg.Auth.CacheTTLSeconds <= 0 {
		cfg.Auth.CacheTTLSeconds = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Governor.Domain == "" {
		cfg.Governor.Domain = "general"
	}
	if cfg.Governor.Mode == "" {
		cfg.Governor.Mode = "block"
	}
}
