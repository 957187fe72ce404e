package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Models: ModelsConfig{
			Classifier: StageModel{
				Model:       "gpt-4.1",
				Temperature: 0.0,
			},
			Assistant: StageModel{
				Model:       "o3",
				Temperature: 0.7,
				MaxTokens:   65536,
			},
		},
		Limits: LimitsConfig{
			MaxToolIterations:      10,
			MaxConcurrentToolCalls: 4,
			ToolCallTimeoutSec:     60,
			ModelTimeoutSec:        120,
			RunBudgetSec:           300,
			MaxConcurrentRuns:      8,
			HistoryWindow:          50,
			ClassifierRetries:      2,
			QueueCapacity:          256,
			ShutdownGraceSec:       30,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "~/.triagebot/triagebot.db",
		},
		Provider: ProviderConfig{
			APIBase: "https://api.openai.com/v1",
		},
		Channels: ChannelsConfig{
			Slack: SlackConfig{
				OutboundPerSecond: 1,
			},
		},
		Telemetry: TelemetryConfig{
			Protocol:    "http",
			ServiceName: "triagebot",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	envStr("TRIAGEBOT_OPENAI_API_KEY", &c.Provider.APIKey)
	envStr("TRIAGEBOT_OPENAI_API_BASE", &c.Provider.APIBase)
	envStr("TRIAGEBOT_SLACK_APP_TOKEN", &c.Channels.Slack.AppToken)
	envStr("TRIAGEBOT_SLACK_BOT_TOKEN", &c.Channels.Slack.BotToken)
	envStr("TRIAGEBOT_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("TRIAGEBOT_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("TRIAGEBOT_DB_DRIVER", &c.Database.Driver)
	envStr("TRIAGEBOT_DB_PATH", &c.Database.Path)
	envStr("TRIAGEBOT_DIRECTIVE", &c.Directive)
	envStr("TRIAGEBOT_MCP_CONFIG", &c.MCPConfigPath)

	envStr("TRIAGEBOT_CLASSIFIER_MODEL", &c.Models.Classifier.Model)
	envStr("TRIAGEBOT_ASSISTANT_MODEL", &c.Models.Assistant.Model)

	envInt("TRIAGEBOT_MAX_TOOL_ITERATIONS", &c.Limits.MaxToolIterations)
	envInt("TRIAGEBOT_MAX_CONCURRENT_RUNS", &c.Limits.MaxConcurrentRuns)
	envInt("TRIAGEBOT_RUN_BUDGET_SEC", &c.Limits.RunBudgetSec)

	envStr("TRIAGEBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("TRIAGEBOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("TRIAGEBOT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("TRIAGEBOT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	// Auto-enable channels if credentials are provided via env.
	if c.Channels.Slack.AppToken != "" && c.Channels.Slack.BotToken != "" {
		c.Channels.Slack.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
}

// Validate rejects configs the runtime cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path required for sqlite driver")
		}
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("TRIAGEBOT_POSTGRES_DSN required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Telemetry.Protocol {
	case "", "http", "grpc":
	default:
		return fmt.Errorf("unknown telemetry protocol %q", c.Telemetry.Protocol)
	}

	if c.Limits.MaxToolIterations <= 0 {
		return fmt.Errorf("limits.max_tool_iterations must be positive")
	}
	if c.Limits.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("limits.max_concurrent_runs must be positive")
	}

	for name, srv := range c.MCPServers {
		if srv.Command == "" && srv.URL == "" {
			return fmt.Errorf("mcp server %q: command or url required", name)
		}
	}
	return nil
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
