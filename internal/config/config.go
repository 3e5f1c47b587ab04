package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file-supplied values. The server runs
// with no config file at all when these are set.
const (
	EnvAPIKey  = "PLANBRIDGE_API_KEY"
	EnvBaseURL = "PLANBRIDGE_API_BASE_URL"
)

// Config is the root configuration for the bridge.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Remote    RemoteConfig    `yaml:"remote"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `yaml:"logLevel"` // debug | info | warn | error
}

// RemoteConfig points at the retirement-computation service.
type RemoteConfig struct {
	BaseURL               string `yaml:"baseUrl"`
	APIKey                string `yaml:"apiKey"`
	ReadTimeoutSeconds    int    `yaml:"readTimeoutSeconds"`
	MonteCarloTimeoutSecs int    `yaml:"monteCarloTimeoutSeconds"`
	MaxAttempts           int    `yaml:"maxAttempts"`
}

// TransportConfig selects how tool calls reach the process: a local
// stdio binding or a network-accessible HTTP/SSE binding.
type TransportConfig struct {
	Mode string `yaml:"mode"` // stdio | http | sse
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.planbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".planbridge"
	}
	return filepath.Join(home, ".planbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads and validates the config file at path, falling back to
// Defaults() plus environment overrides when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file is fine; env vars can carry everything we need.
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		data = []byte(ExpandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Remote.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.Remote.BaseURL = v
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Validate checks that the config has valid values, collecting every
// problem into one error.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	switch cfg.Transport.Mode {
	case "stdio", "http", "sse":
	default:
		errs = append(errs, "transport.mode must be one of: stdio, http, sse")
	}
	if cfg.Transport.Port < 0 || cfg.Transport.Port > 65535 {
		errs = append(errs, "transport.port must be between 0 and 65535")
	}

	if cfg.Remote.BaseURL != "" &&
		!strings.HasPrefix(cfg.Remote.BaseURL, "http://") &&
		!strings.HasPrefix(cfg.Remote.BaseURL, "https://") {
		errs = append(errs, "remote.baseUrl must start with http:// or https://")
	}
	if cfg.Remote.ReadTimeoutSeconds < 1 {
		errs = append(errs, "remote.readTimeoutSeconds must be >= 1")
	}
	if cfg.Remote.MonteCarloTimeoutSecs < cfg.Remote.ReadTimeoutSeconds {
		errs = append(errs, "remote.monteCarloTimeoutSeconds must be >= remote.readTimeoutSeconds")
	}
	if cfg.Remote.MaxAttempts < 1 || cfg.Remote.MaxAttempts > 10 {
		errs = append(errs, "remote.maxAttempts must be between 1 and 10")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateCredentials checks the startup-fatal requirements: the bridge can
// be configured loosely, but it refuses to serve without a usable key and
// endpoint. Called by serve, not Load, so doctor can report the gaps.
func ValidateCredentials(cfg *Config) error {
	key := strings.TrimSpace(cfg.Remote.APIKey)
	switch {
	case key == "":
		return fmt.Errorf("API key missing: set %s or remote.apiKey", EnvAPIKey)
	case strings.ContainsAny(key, " \t\n"):
		return fmt.Errorf("API key is malformed: contains whitespace")
	case len(key) < 8:
		return fmt.Errorf("API key is malformed: too short")
	}
	if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return fmt.Errorf("API base URL missing: set %s or remote.baseUrl", EnvBaseURL)
	}
	return nil
}
