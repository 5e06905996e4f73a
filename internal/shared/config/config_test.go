package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", cfg.Model)
	assert.Equal(t, 40, cfg.MaxIterations)
	assert.Equal(t, 200000, cfg.ContextWindow)
	assert.Equal(t, ":8420", cfg.ServerAddr)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadExplicitFile(t *testing.T) {
	path := writeConfig(t, "model: openai/gpt-5\nmax_iterations: 7\nmetrics:\n  enabled: true\n  port: 9000\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-5", cfg.Model)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9000, cfg.Metrics.Port)
}

func TestLoadEnvironmentKeysWin(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	cfg, err := Load(writeConfig(t, "api_keys:\n  anthropic: file-key\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.APIKeys["anthropic"])
}

func TestRequestTimeoutDuration(t *testing.T) {
	assert.Equal(t, 120*time.Second, Config{}.RequestTimeoutDuration())
	assert.Equal(t, 5*time.Second, Config{RequestTimeout: 5}.RequestTimeoutDuration())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x"), ExpandHome("~/x"))
	assert.Equal(t, "/abs/x", ExpandHome("/abs/x"))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
