package relay

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr     = "0.0.0.0:8282"
	DefaultTimeoutSeconds = 30
	DefaultMetricsAddr    = ":9090"
)

// Config holds the deployment-wide settings. ProxyOverride, when set, wins
// over the per-request proxy field on every fetch.
type Config struct {
	ListenAddr     string `yaml:"listen,omitempty"`
	ProxyOverride  string `yaml:"proxy,omitempty"`
	TimeoutSeconds uint   `yaml:"timeout_seconds,omitempty"`
	UserAgent      string `yaml:"user_agent,omitempty"`
	MetricsAddr    string `yaml:"metrics,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:     DefaultListenAddr,
		TimeoutSeconds: DefaultTimeoutSeconds,
		MetricsAddr:    DefaultMetricsAddr,
	}
}

// LoadConfig resolves settings from the built-in defaults, then an optional
// YAML file, then environment variables. Later sources win.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("syntax error in config file '%s': %w", path, err)
		}
	}

	cfg.ListenAddr = getenv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.ProxyOverride = getenv("PROXY_OVERRIDE", cfg.ProxyOverride)
	cfg.UserAgent = getenv("USER_AGENT", cfg.UserAgent)
	cfg.MetricsAddr = getenv("METRICS_ADDR", cfg.MetricsAddr)

	if timeoutStr := os.Getenv("DEFAULT_TIMEOUT_SECONDS"); timeoutStr != "" {
		timeout, err := strconv.Atoi(timeoutStr)
		if err != nil || timeout < 0 {
			return cfg, fmt.Errorf("invalid DEFAULT_TIMEOUT_SECONDS '%s'", timeoutStr)
		}
		cfg.TimeoutSeconds = uint(timeout)
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
