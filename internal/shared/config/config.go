// Package config loads runtime configuration from file, environment and
// defaults via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Model is a "<provider>/<model>" identifier or an alias.
	Model string `mapstructure:"model" yaml:"model"`
	// SummaryModel serves title generation and context compaction.
	SummaryModel string `mapstructure:"summary_model" yaml:"summary_model"`

	APIKeys map[string]string `mapstructure:"api_keys" yaml:"api_keys"`
	// BaseURLs overrides the per-provider endpoint, keyed by provider.
	BaseURLs map[string]string `mapstructure:"base_urls" yaml:"base_urls"`

	MaxIterations  int     `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature" yaml:"temperature"`
	ContextWindow  int     `mapstructure:"context_window" yaml:"context_window"`
	RequestTimeout int     `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`

	SessionDir string `mapstructure:"session_dir" yaml:"session_dir"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`

	ServerAddr string `mapstructure:"server_addr" yaml:"server_addr"`

	MCPConfigPath string   `mapstructure:"mcp_config_path" yaml:"mcp_config_path"`
	LSPServers    []string `mapstructure:"lsp_servers" yaml:"lsp_servers"`

	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// MetricsConfig configures the Prometheus-exported metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// TracingConfig configures OTLP tracing.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// RequestTimeoutDuration returns the provider request timeout.
func (c Config) RequestTimeoutDuration() time.Duration {
	if c.RequestTimeout <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", "anthropic/claude-sonnet-4-5")
	v.SetDefault("summary_model", "topics")
	v.SetDefault("max_iterations", 40)
	v.SetDefault("max_tokens", 8192)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("context_window", 200000)
	v.SetDefault("request_timeout_seconds", 120)
	v.SetDefault("session_dir", "~/.codesm/sessions")
	v.SetDefault("log_level", "info")
	v.SetDefault("server_addr", ":8420")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9464)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Load resolves configuration. Search order: explicit path, ./config.yaml,
// ~/.config/codesm/config.yaml, then CODESM_* environment variables on top.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CODESM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "codesm"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.SessionDir = ExpandHome(cfg.SessionDir)
	if cfg.APIKeys == nil {
		cfg.APIKeys = map[string]string{}
	}
	// Conventional environment keys win over file entries when set.
	for provider, env := range map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"router":    "OPENROUTER_API_KEY",
	} {
		if key := os.Getenv(env); key != "" {
			cfg.APIKeys[provider] = key
		}
	}
	return cfg, nil
}

// ExpandHome resolves a leading ~/ against the user home dir.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
