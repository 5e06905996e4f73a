package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigsMCPServersKey(t *testing.T) {
	data := []byte(`{"mcpServers": {"fs": {"command": "mcp-fs", "args": ["--root", "."]}}}`)
	configs, err := parseConfigs(data)
	require.NoError(t, err)
	require.Contains(t, configs, "fs")
	assert.Equal(t, "mcp-fs", configs["fs"].Command)
	assert.Equal(t, []string{"--root", "."}, configs["fs"].Args)
}

func TestParseConfigsNestedMCPKey(t *testing.T) {
	data := []byte(`{"mcp": {"servers": {"db": {"command": "mcp-db"}}}}`)
	configs, err := parseConfigs(data)
	require.NoError(t, err)
	assert.Contains(t, configs, "db")
}

func TestParseConfigsServersKey(t *testing.T) {
	data := []byte(`{"servers": {"web": {"command": "mcp-web"}}}`)
	configs, err := parseConfigs(data)
	require.NoError(t, err)
	assert.Contains(t, configs, "web")
}

func TestParseConfigsRootLevelMap(t *testing.T) {
	data := []byte(`{"tools": {"command": "mcp-tools"}, "junk": {"something": true}}`)
	configs, err := parseConfigs(data)
	require.NoError(t, err)
	assert.Contains(t, configs, "tools")
	assert.NotContains(t, configs, "junk")
}

func TestParseConfigsMalformed(t *testing.T) {
	_, err := parseConfigs([]byte(`{not json`))
	assert.Error(t, err)
}

func TestNormalizeConfigsDegradesTransports(t *testing.T) {
	configs := normalizeConfigs(map[string]ServerConfig{
		"sse-with-cmd": {Transport: "sse", Command: "mcp-sse"},
		"sse-no-cmd":   {Transport: "sse", URL: "http://example.com"},
		"plain":        {Command: "mcp-plain"},
		"empty":        {},
	}, nil)

	require.Contains(t, configs, "sse-with-cmd")
	assert.Equal(t, "stdio", configs["sse-with-cmd"].Transport)
	assert.NotContains(t, configs, "sse-no-cmd")
	assert.Contains(t, configs, "plain")
	assert.NotContains(t, configs, "empty")
}

func TestDiscoverConfigsFirstFileWins(t *testing.T) {
	work := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(work, "mcp-servers.json"),
		[]byte(`{"mcpServers": {"primary": {"command": "a"}}}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(work, ".mcp"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(work, ".mcp", "servers.json"),
		[]byte(`{"mcpServers": {"secondary": {"command": "b"}}}`), 0o644))

	configs := DiscoverConfigs(work, nil)
	assert.Contains(t, configs, "primary")
	assert.NotContains(t, configs, "secondary")
}

func TestDiscoverConfigsNoFiles(t *testing.T) {
	configs := DiscoverConfigs(t.TempDir(), nil)
	assert.Empty(t, configs)
}

func TestLoadConfigFileExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"servers": {"x": {"command": "mcp-x"}}}`), 0o644))

	configs := LoadConfigFile(path, nil)
	assert.Contains(t, configs, "x")

	assert.Empty(t, LoadConfigFile(filepath.Join(t.TempDir(), "missing.json"), nil))
}
