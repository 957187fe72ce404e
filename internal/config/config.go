package config

// Config is the root configuration for the triage bot.
// Secrets (API keys, tokens, DSNs) are never read from the file; they come
// from environment variables only.
type Config struct {
	Models    ModelsConfig    `json:"models"`
	Limits    LimitsConfig    `json:"limits"`
	Database  DatabaseConfig  `json:"database"`
	Provider  ProviderConfig  `json:"provider"`
	Channels  ChannelsConfig  `json:"channels"`
	Telemetry TelemetryConfig `json:"telemetry"`

	// Directive overrides the built-in default directive applied to channels
	// that have never been configured.
	Directive string `json:"directive,omitempty"`

	// MCPConfigPath points at an mcp.json-compatible file describing tool
	// servers. Watched for changes when set. Servers may also be declared
	// inline via MCPServers.
	MCPConfigPath string                      `json:"mcp_config_path,omitempty"`
	MCPServers    map[string]*MCPServerConfig `json:"mcp_servers,omitempty"`

	Verbose bool `json:"-"`
}

// ModelsConfig selects the model for each pipeline stage.
type ModelsConfig struct {
	Classifier StageModel `json:"classifier"`
	Assistant  StageModel `json:"assistant"`
}

// StageModel holds per-stage model parameters.
type StageModel struct {
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
	ReasoningEffort string  `json:"reasoning_effort,omitempty"`
}

// LimitsConfig bounds the pipeline's resource usage.
type LimitsConfig struct {
	MaxToolIterations      int `json:"max_tool_iterations,omitempty"`       // assistant loop bound (default 10)
	MaxConcurrentToolCalls int `json:"max_concurrent_tool_calls,omitempty"` // parallel tool cap per turn (default 4)
	ToolCallTimeoutSec     int `json:"tool_call_timeout_sec,omitempty"`     // per tool invocation (default 60)
	ModelTimeoutSec        int `json:"model_timeout_sec,omitempty"`         // per model call (default 120)
	RunBudgetSec           int `json:"run_budget_sec,omitempty"`            // wall clock per pipeline run (default 300)
	MaxConcurrentRuns      int `json:"max_concurrent_runs,omitempty"`       // global cap across channels (default 8)
	HistoryWindow          int `json:"history_window,omitempty"`            // message records per channel in context (default 50)
	ClassifierRetries      int `json:"classifier_retries,omitempty"`        // transient retries before degrading (default 2)
	QueueCapacity          int `json:"queue_capacity,omitempty"`            // inbound event queue size (default 256)
	ShutdownGraceSec       int `json:"shutdown_grace_sec,omitempty"`        // drain window for in-flight runs on shutdown (default 30)
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" (default) or "postgres"
	Path        string `json:"path,omitempty"`   // sqlite file path
	PostgresDSN string `json:"-"`                // env only: TRIAGEBOT_POSTGRES_DSN
}

// ProviderConfig configures the completion provider endpoint.
type ProviderConfig struct {
	APIBase string `json:"api_base,omitempty"` // default https://api.openai.com/v1
	APIKey  string `json:"-"`                  // env only: TRIAGEBOT_OPENAI_API_KEY
}

// ChannelsConfig holds the chat platform adapters.
type ChannelsConfig struct {
	Slack   SlackConfig   `json:"slack"`
	Discord DiscordConfig `json:"discord"`
}

// SlackConfig configures the Slack socket-mode adapter.
type SlackConfig struct {
	Enabled           bool   `json:"enabled"`
	AppToken          string `json:"-"` // env only: TRIAGEBOT_SLACK_APP_TOKEN (xapp-)
	BotToken          string `json:"-"` // env only: TRIAGEBOT_SLACK_BOT_TOKEN (xoxb-)
	RespondToTopLevel *bool  `json:"respond_to_top_level,omitempty"` // default true
	OutboundPerSecond int    `json:"outbound_per_second,omitempty"`  // default 1
}

// DiscordConfig configures the Discord gateway adapter.
type DiscordConfig struct {
	Enabled           bool   `json:"enabled"`
	Token             string `json:"-"` // env only: TRIAGEBOT_DISCORD_TOKEN
	RespondToTopLevel *bool  `json:"respond_to_top_level,omitempty"`
}

// TelemetryConfig configures the OTLP trace exporter. Disabled when the
// endpoint is empty.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "http" (default) or "grpc"
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// MCPServerConfig configures a single external MCP tool server.
type MCPServerConfig struct {
	Transport  string            `json:"transport,omitempty"`   // "stdio" (default when command set), "sse", "streamable-http"
	Command    string            `json:"command,omitempty"`     // stdio: command to spawn
	Args       []string          `json:"args,omitempty"`        // stdio: command arguments
	Env        map[string]string `json:"env,omitempty"`         // stdio: extra environment variables
	URL        string            `json:"url,omitempty"`         // sse/http: server URL
	Headers    map[string]string `json:"headers,omitempty"`     // sse/http: extra HTTP headers
	Enabled    *bool             `json:"enabled,omitempty"`     // default true
	ToolPrefix string            `json:"tool_prefix,omitempty"` // prefix for tool names (avoids collisions)
	TimeoutSec int               `json:"timeout_sec,omitempty"` // per-tool-call timeout (default 60)
}

// IsEnabled returns whether this MCP server is enabled (default true).
func (c *MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// RespondsToTopLevel reports whether top-level channel messages are treated
// as implicitly addressed to the bot (default true; thread replies always
// require an explicit mention).
func (c SlackConfig) RespondsToTopLevel() bool {
	return c.RespondToTopLevel == nil || *c.RespondToTopLevel
}

func (c DiscordConfig) RespondsToTopLevel() bool {
	return c.RespondToTopLevel == nil || *c.RespondToTopLevel
}
