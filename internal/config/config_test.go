package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
host: dream-dictionary.vercel.app
port: 9000
state-dir: /tmp/dream-state
api-base-url: https://api.example.com/
exchange-url: https://auth.example.com/exchange
trusted-hosts:
  - localhost
  - staging.example.com
allow-fallback-on-failure: false
usage-limit: 5
prompt-cooldown-seconds: 60
login:
  auth-url: https://login.example.com/authorize
  client-id: dream-client
  callback-port: 9216
metrics: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "dream-dictionary.vercel.app", cfg.GetHost())
	assert.Equal(t, 9000, cfg.GetPort())
	assert.Equal(t, "https://api.example.com", cfg.GetAPIBaseURL(), "trailing slash is trimmed")
	assert.Equal(t, "https://auth.example.com/exchange", cfg.GetExchangeURL())
	assert.Equal(t, []string{"localhost", "staging.example.com"}, cfg.GetTrustedHosts())
	assert.False(t, cfg.IsFallbackAllowedOnFailure())
	assert.Equal(t, 5, cfg.GetUsageLimit())
	assert.Equal(t, time.Minute, cfg.GetPromptCooldown())
	assert.Equal(t, 9216, cfg.Login.GetCallbackPort())
	assert.True(t, cfg.Metrics)

	dir, err := cfg.GetStateDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/dream-state", dir)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "host: [unclosed")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigOptionalMissingFile(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHost, cfg.GetHost())
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}

	assert.Equal(t, DefaultHost, cfg.GetHost())
	assert.Equal(t, DefaultPort, cfg.GetPort())
	assert.Equal(t, DefaultAPIBaseURL, cfg.GetAPIBaseURL())
	assert.Equal(t, DefaultAPIBaseURL+"/api/auth/exchange", cfg.GetExchangeURL())
	assert.Equal(t, DefaultUsageLimit, cfg.GetUsageLimit())
	assert.Equal(t, DefaultPromptCooldownSeconds*time.Second, cfg.GetPromptCooldown())
	assert.True(t, cfg.IsFallbackAllowedOnFailure())
	assert.Contains(t, cfg.GetTrustedHosts(), "localhost")
	assert.Equal(t, DefaultCallbackPort, cfg.Login.GetCallbackPort())
}

func TestNilConfigGetters(t *testing.T) {
	var cfg *Config

	assert.Equal(t, DefaultHost, cfg.GetHost())
	assert.Equal(t, DefaultPort, cfg.GetPort())
	assert.Equal(t, DefaultUsageLimit, cfg.GetUsageLimit())
	assert.True(t, cfg.IsFallbackAllowedOnFailure())
}

func TestZeroValuesFallBackToDefaults(t *testing.T) {
	zero := 0
	negative := -1
	cfg := &Config{
		Port:                  -1,
		UsageLimit:            &zero,
		PromptCooldownSeconds: &negative,
	}

	assert.Equal(t, DefaultPort, cfg.GetPort())
	assert.Equal(t, DefaultUsageLimit, cfg.GetUsageLimit())
	assert.Equal(t, DefaultPromptCooldownSeconds*time.Second, cfg.GetPromptCooldown())
}

func TestGetStateDirExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := &Config{StateDir: "~/dream-state"}
	dir, err := cfg.GetStateDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "dream-state"), dir)
}
