package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Limits.MaxToolIterations != 10 {
		t.Errorf("MaxToolIterations = %d, want 10", cfg.Limits.MaxToolIterations)
	}
	if cfg.Models.Classifier.Temperature != 0.0 {
		t.Errorf("classifier temperature = %v, want 0", cfg.Models.Classifier.Temperature)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
}

func TestLoadJSON5WithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		// channel directive override
		directive: "Answer politely.",
		limits: { max_tool_iterations: 5 },
		models: { assistant: { model: "gpt-5" } },
	}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Directive != "Answer politely." {
		t.Errorf("directive = %q", cfg.Directive)
	}
	if cfg.Limits.MaxToolIterations != 5 {
		t.Errorf("max_tool_iterations = %d, want 5", cfg.Limits.MaxToolIterations)
	}
	if cfg.Models.Assistant.Model != "gpt-5" {
		t.Errorf("assistant model = %q, want gpt-5", cfg.Models.Assistant.Model)
	}
	// Untouched defaults survive a partial file.
	if cfg.Limits.MaxConcurrentRuns != 8 {
		t.Errorf("max_concurrent_runs = %d, want 8", cfg.Limits.MaxConcurrentRuns)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRIAGEBOT_OPENAI_API_KEY", "sk-test")
	t.Setenv("TRIAGEBOT_SLACK_APP_TOKEN", "xapp-1")
	t.Setenv("TRIAGEBOT_SLACK_BOT_TOKEN", "xoxb-1")
	t.Setenv("TRIAGEBOT_MAX_TOOL_ITERATIONS", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	if !cfg.Channels.Slack.Enabled {
		t.Error("slack should auto-enable when both tokens present")
	}
	if cfg.Limits.MaxToolIterations != 3 {
		t.Errorf("max_tool_iterations = %d, want 3", cfg.Limits.MaxToolIterations)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"zero iterations", func(c *Config) { c.Limits.MaxToolIterations = 0 }},
		{"bad telemetry protocol", func(c *Config) { c.Telemetry.Protocol = "udp" }},
		{"mcp server without target", func(c *Config) {
			c.MCPServers = map[string]*MCPServerConfig{"bad": {}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("want validation error, got nil")
			}
		})
	}
}

func TestLoadMCPFileAcceptsBothKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	data := `{
		"mcpServers": {
			"docs": { "command": "docs-server", "args": ["--stdio"] }
		},
		"servers": {
			"search": { "url": "https://mcp.example.com/sse", "transport": "sse" }
		}
	}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	servers, err := LoadMCPFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if servers["docs"].Transport != "stdio" {
		t.Errorf("docs transport = %q, want stdio (inferred from command)", servers["docs"].Transport)
	}
	if servers["docs"].TimeoutSec != 60 {
		t.Errorf("docs timeout = %d, want default 60", servers["docs"].TimeoutSec)
	}
	if servers["search"].Transport != "sse" {
		t.Errorf("search transport = %q, want sse", servers["search"].Transport)
	}
}
