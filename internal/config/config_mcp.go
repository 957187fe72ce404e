package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// mcpFile mirrors the mcp.json layout used by common MCP hosts. Both the
// "servers" and "mcpServers" top-level keys are accepted.
type mcpFile struct {
	Servers    map[string]*MCPServerConfig `json:"servers"`
	McpServers map[string]*MCPServerConfig `json:"mcpServers"`
}

// LoadMCPFile parses an mcp.json-compatible file into a server config map.
// Entries from "servers" win on name collision with "mcpServers".
func LoadMCPFile(path string) (map[string]*MCPServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp config: %w", err)
	}

	var f mcpFile
	if err := json5.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse mcp config: %w", err)
	}

	out := make(map[string]*MCPServerConfig, len(f.Servers)+len(f.McpServers))
	for name, srv := range f.McpServers {
		out[name] = normalizeMCP(srv)
	}
	for name, srv := range f.Servers {
		out[name] = normalizeMCP(srv)
	}
	return out, nil
}

// MCPServerConfigs merges inline servers with the mcp.json file (inline wins).
func (c *Config) MCPServerConfigs() (map[string]*MCPServerConfig, error) {
	merged := make(map[string]*MCPServerConfig)
	if c.MCPConfigPath != "" {
		fromFile, err := LoadMCPFile(ExpandHome(c.MCPConfigPath))
		if err != nil {
			return nil, err
		}
		for name, srv := range fromFile {
			merged[name] = srv
		}
	}
	for name, srv := range c.MCPServers {
		merged[name] = normalizeMCP(srv)
	}
	return merged, nil
}

func normalizeMCP(srv *MCPServerConfig) *MCPServerConfig {
	if srv.Transport == "" {
		if srv.Command != "" {
			srv.Transport = "stdio"
		} else {
			srv.Transport = "streamable-http"
		}
	}
	if srv.TimeoutSec <= 0 {
		srv.TimeoutSec = 60
	}
	return srv
}
