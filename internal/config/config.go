// Package config provides configuration management for the Dream Dictionary
// client. It handles loading and parsing YAML configuration files, and provides
// structured access to application settings including the current host identity,
// trusted hosts for fallback synthesis, remote endpoints, usage throttling
// parameters, and the local state directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultUsageLimit is the anonymous-use count at which the login
	// prompt becomes eligible.
	DefaultUsageLimit = 15

	// DefaultPromptCooldownSeconds is the minimum gap between two login
	// prompts, regardless of how many threshold crossings occur inside it.
	DefaultPromptCooldownSeconds = 3600

	// DefaultHost is assumed when no host identity is configured.
	DefaultHost = "localhost"

	// DefaultPort is the panel server listen port.
	DefaultPort = 8217

	// DefaultAPIBaseURL points at the hosted interpretation backend.
	DefaultAPIBaseURL = "https://dream-dictionary.vercel.app"
)

// defaultTrustedHosts are the hosts on which sessions are synthesized locally
// without contacting the exchange endpoint.
var defaultTrustedHosts = []string{"localhost", "127.0.0.1", "dream-dictionary.vercel.app"}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the identity of the environment the client runs as. It is
	// compared against TrustedHosts to pick the session resolution path.
	Host string `yaml:"host" json:"host"`

	// Port is the listen port of the local panel server.
	Port int `yaml:"port" json:"port"`

	// StateDir is the directory holding the session, usage and prompt
	// records. Empty means ~/.dream-dictionary.
	StateDir string `yaml:"state-dir" json:"state-dir"`

	// APIBaseURL is the base URL of the interpretation backend.
	APIBaseURL string `yaml:"api-base-url" json:"api-base-url"`

	// ExchangeURL is the identity exchange endpoint. Empty means
	// APIBaseURL + "/api/auth/exchange".
	ExchangeURL string `yaml:"exchange-url" json:"exchange-url"`

	// TrustedHosts lists hosts on which fallback synthesis is used
	// directly, skipping the exchange endpoint entirely.
	TrustedHosts []string `yaml:"trusted-hosts" json:"trusted-hosts"`

	// AllowFallbackOnFailure controls whether a failed exchange degrades to
	// fallback synthesis. nil means default (true). When false, a failed
	// exchange surfaces a sign-in error instead of a synthesized session.
	AllowFallbackOnFailure *bool `yaml:"allow-fallback-on-failure,omitempty" json:"allow-fallback-on-failure,omitempty"`

	// UsageLimit is the anonymous-use count that arms the login prompt.
	// nil means default (15).
	UsageLimit *int `yaml:"usage-limit,omitempty" json:"usage-limit,omitempty"`

	// PromptCooldownSeconds is the rolling window within which at most one
	// login prompt is shown. nil means default (3600).
	PromptCooldownSeconds *int `yaml:"prompt-cooldown-seconds,omitempty" json:"prompt-cooldown-seconds,omitempty"`

	// Login configures the external login provider used by the login flow.
	Login LoginConfig `yaml:"login,omitempty" json:"login,omitempty"`

	// RequestLog enables or disables detailed request logging on the panel.
	RequestLog bool `yaml:"request-log" json:"request-log"`

	// LogFile, when set, routes logs to a rotated file instead of stderr.
	LogFile string `yaml:"log-file,omitempty" json:"log-file,omitempty"`

	// LogLevel overrides the default logging level (debug, info, warn, error).
	LogLevel string `yaml:"log-level,omitempty" json:"log-level,omitempty"`

	// Metrics enables the Prometheus /metrics endpoint on the panel.
	Metrics bool `yaml:"metrics" json:"metrics"`
}

// LoginConfig describes the external login provider.
type LoginConfig struct {
	// AuthURL is the provider's authorization endpoint.
	AuthURL string `yaml:"auth-url" json:"auth-url"`

	// ClientID identifies this client to the provider.
	ClientID string `yaml:"client-id" json:"client-id"`

	// Scopes lists the OAuth scopes requested from the provider.
	Scopes []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`

	// CallbackPort is the loopback port used to catch the provider
	// redirect during the login flow. 0 picks the default (8216).
	CallbackPort int `yaml:"callback-port,omitempty" json:"callback-port,omitempty"`
}

// DefaultCallbackPort is used when LoginConfig.CallbackPort is unset.
const DefaultCallbackPort = 8216

// GetHost returns the configured host identity, defaulting to localhost.
func (c *Config) GetHost() string {
	if c == nil || strings.TrimSpace(c.Host) == "" {
		return DefaultHost
	}
	return strings.TrimSpace(c.Host)
}

// GetPort returns the panel listen port, defaulting to 8217.
func (c *Config) GetPort() int {
	if c == nil || c.Port <= 0 {
		return DefaultPort
	}
	return c.Port
}

// GetStateDir returns the state directory, defaulting to ~/.dream-dictionary.
func (c *Config) GetStateDir() (string, error) {
	if c != nil && strings.TrimSpace(c.StateDir) != "" {
		return expandHome(strings.TrimSpace(c.StateDir))
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".dream-dictionary"), nil
}

// GetAPIBaseURL returns the interpretation backend base URL.
func (c *Config) GetAPIBaseURL() string {
	if c == nil || strings.TrimSpace(c.APIBaseURL) == "" {
		return DefaultAPIBaseURL
	}
	return strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
}

// GetExchangeURL returns the identity exchange endpoint.
func (c *Config) GetExchangeURL() string {
	if c != nil && strings.TrimSpace(c.ExchangeURL) != "" {
		return strings.TrimSpace(c.ExchangeURL)
	}
	return c.GetAPIBaseURL() + "/api/auth/exchange"
}

// GetTrustedHosts returns the fallback synthesis host list.
func (c *Config) GetTrustedHosts() []string {
	if c == nil || len(c.TrustedHosts) == 0 {
		return append([]string(nil), defaultTrustedHosts...)
	}
	return append([]string(nil), c.TrustedHosts...)
}

// IsFallbackAllowedOnFailure reports whether a failed exchange may degrade to
// fallback synthesis, defaulting to true.
func (c *Config) IsFallbackAllowedOnFailure() bool {
	if c == nil || c.AllowFallbackOnFailure == nil {
		return true
	}
	return *c.AllowFallbackOnFailure
}

// GetUsageLimit returns the anonymous-use threshold, defaulting to 15.
func (c *Config) GetUsageLimit() int {
	if c == nil || c.UsageLimit == nil || *c.UsageLimit <= 0 {
		return DefaultUsageLimit
	}
	return *c.UsageLimit
}

// GetPromptCooldown returns the prompt cooldown window, defaulting to 3600s.
func (c *Config) GetPromptCooldown() time.Duration {
	if c == nil || c.PromptCooldownSeconds == nil || *c.PromptCooldownSeconds <= 0 {
		return DefaultPromptCooldownSeconds * time.Second
	}
	return time.Duration(*c.PromptCooldownSeconds) * time.Second
}

// GetCallbackPort returns the login callback port, defaulting to 8216.
func (l *LoginConfig) GetCallbackPort() int {
	if l == nil || l.CallbackPort <= 0 {
		return DefaultCallbackPort
	}
	return l.CallbackPort
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// LoadConfigOptional behaves like LoadConfig but returns an empty Config when
// the file does not exist, so first runs work without any configuration.
func LoadConfigOptional(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	return cfg, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
