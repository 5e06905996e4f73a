package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"

	"codesm/internal/shared/logging"
)

// ServerConfig describes how to reach one MCP server. Only the stdio
// transport is supported; sse and streamable-http entries degrade to
// stdio when a command is present and are skipped otherwise.
type ServerConfig struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Transport string            `json:"transport,omitempty"`
	URL       string            `json:"url,omitempty"`
}

// configPaths lists descriptor locations in priority order; the first
// file that exists wins.
func configPaths(workDir string) []string {
	paths := []string{
		filepath.Join(workDir, "mcp-servers.json"),
		filepath.Join(workDir, ".mcp", "servers.json"),
		filepath.Join(workDir, "codesm.json"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "codesm", "mcp.json"))
	}
	return paths
}

// DiscoverConfigs finds and parses the first server descriptor file for
// the workspace. No file at all is not an error: the result is empty.
func DiscoverConfigs(workDir string, logger logging.Logger) map[string]ServerConfig {
	logger = logging.OrNop(logger)
	for _, path := range configPaths(workDir) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		configs, err := parseConfigs(data)
		if err != nil {
			logger.Warn("mcp: skipping unparseable config %s: %v", path, err)
			continue
		}
		if len(configs) == 0 {
			continue
		}
		logger.Info("mcp: loaded %d server(s) from %s", len(configs), path)
		return normalizeConfigs(configs, logger)
	}
	return map[string]ServerConfig{}
}

// LoadConfigFile parses one explicit descriptor file, bypassing discovery.
func LoadConfigFile(path string, logger logging.Logger) map[string]ServerConfig {
	logger = logging.OrNop(logger)
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("mcp: cannot read config %s: %v", path, err)
		return map[string]ServerConfig{}
	}
	configs, err := parseConfigs(data)
	if err != nil {
		logger.Warn("mcp: unparseable config %s: %v", path, err)
		return map[string]ServerConfig{}
	}
	return normalizeConfigs(configs, logger)
}

// parseConfigs accepts the descriptor map at any of the conventional
// keys: mcpServers, mcp.servers, servers, or the document root.
func parseConfigs(data []byte) (map[string]ServerConfig, error) {
	var doc struct {
		MCPServers map[string]ServerConfig `json:"mcpServers"`
		MCP        *struct {
			Servers map[string]ServerConfig `json:"servers"`
		} `json:"mcp"`
		Servers map[string]ServerConfig `json:"servers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	switch {
	case len(doc.MCPServers) > 0:
		return doc.MCPServers, nil
	case doc.MCP != nil && len(doc.MCP.Servers) > 0:
		return doc.MCP.Servers, nil
	case len(doc.Servers) > 0:
		return doc.Servers, nil
	}

	// Root-level map: keep only entries that look like descriptors.
	var root map[string]ServerConfig
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	out := map[string]ServerConfig{}
	for name, cfg := range root {
		if cfg.Command != "" || cfg.URL != "" {
			out[name] = cfg
		}
	}
	return out, nil
}

func normalizeConfigs(configs map[string]ServerConfig, logger logging.Logger) map[string]ServerConfig {
	logger = logging.OrNop(logger)
	out := make(map[string]ServerConfig, len(configs))
	for name, cfg := range configs {
		if cfg.Transport != "" && cfg.Transport != "stdio" {
			if cfg.Command == "" {
				logger.Warn("mcp: server %s uses unsupported transport %q and has no command, skipping", name, cfg.Transport)
				continue
			}
			logger.Warn("mcp: server %s requested transport %q, degrading to stdio", name, cfg.Transport)
			cfg.Transport = "stdio"
		}
		if cfg.Command == "" {
			logger.Warn("mcp: server %s has no command, skipping", name)
			continue
		}
		out[name] = cfg
	}
	return out
}
