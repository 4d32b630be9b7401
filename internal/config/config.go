// Package config loads specsync configuration from a YAML file and
// SPECSYNC_-prefixed environment variables. Command-line flags override
// both.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Backend names accepted in configuration.
const (
	BackendCLI  = "cli"
	BackendREST = "rest"
)

// Sync holds the orchestrator toggles.
type Sync struct {
	Update           bool `mapstructure:"update"`
	RespectStatus    bool `mapstructure:"respect_status"`
	Prune            bool `mapstructure:"prune"`
	RequireMilestone bool `mapstructure:"require_milestone"`
}

// Retry tunes the backoff wrapper.
type Retry struct {
	MaxAttempts     int     `mapstructure:"max_attempts"`
	BaseSeconds     float64 `mapstructure:"base_seconds"`
	MaxSleepSeconds float64 `mapstructure:"max_sleep_seconds"`
}

// Concurrency tunes the batch dispatcher.
type Concurrency struct {
	Enabled    bool `mapstructure:"enabled"`
	MinItems   int  `mapstructure:"min_items"`
	BatchSize  int  `mapstructure:"batch_size"`
	MaxWorkers int  `mapstructure:"max_workers"`
	PauseMS    int  `mapstructure:"pause_ms"`
}

// Config is the full loaded configuration.
type Config struct {
	SpecPath    string `mapstructure:"spec_path"`
	Repo        string `mapstructure:"repo"`
	Backend     string `mapstructure:"backend"`
	TokenEnv    string `mapstructure:"token_env"`
	IndexPath   string `mapstructure:"index_path"`
	MirrorPath  string `mapstructure:"mirror_path"`
	SummaryPath string `mapstructure:"summary_path"`

	Sync        Sync        `mapstructure:"sync"`
	Retry       Retry       `mapstructure:"retry"`
	Concurrency Concurrency `mapstructure:"concurrency"`
}

// Token reads the remote API token from the configured environment
// variable. Empty when unset; the CLI backend does not need one.
func (c *Config) Token() string {
	return os.Getenv(c.TokenEnv)
}

// Validate checks cross-field constraints that matter before a run.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendCLI, BackendREST:
	default:
		return fmt.Errorf("backend must be %q or %q (got %q)", BackendCLI, BackendREST, c.Backend)
	}
	if c.Repo == "" {
		return fmt.Errorf("repo is required (owner/name)")
	}
	return nil
}

// Load reads configuration. path may be empty, in which case
// specsync.yaml in the working directory is used if present; a missing
// config file is not an error, defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("specsync")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SPECSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("spec_path", "SPEC.md")
	v.SetDefault("backend", BackendCLI)
	v.SetDefault("token_env", "GITHUB_TOKEN")
	v.SetDefault("index_path", ".specsync/index.json")
	v.SetDefault("summary_path", ".specsync/summary.json")
	v.SetDefault("sync.update", true)
	v.SetDefault("sync.respect_status", true)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_seconds", 2.0)
	v.SetDefault("concurrency.min_items", 10)
	v.SetDefault("concurrency.batch_size", 8)
	v.SetDefault("concurrency.max_workers", 4)
	v.SetDefault("concurrency.pause_ms", 500)

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		// Default-only configuration is fine when no file was named.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}
