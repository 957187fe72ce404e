package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/triagebot/internal/bus"
	"github.com/nextlevelbuilder/triagebot/internal/channels"
	"github.com/nextlevelbuilder/triagebot/internal/channels/discord"
	"github.com/nextlevelbuilder/triagebot/internal/channels/slack"
	"github.com/nextlevelbuilder/triagebot/internal/config"
	"github.com/nextlevelbuilder/triagebot/internal/mcp"
	"github.com/nextlevelbuilder/triagebot/internal/providers"
	"github.com/nextlevelbuilder/triagebot/internal/store"
	"github.com/nextlevelbuilder/triagebot/internal/telemetry"
	"github.com/nextlevelbuilder/triagebot/internal/tools"
	"github.com/nextlevelbuilder/triagebot/internal/triage"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the triage bot",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	if err := serve(); err != nil {
		slog.Error("triagebot exited", "error", err)
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Verbose = verbose
	if cfg.Directive != "" {
		store.DefaultDirective = cfg.Directive
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	stores, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer stores.Close()

	provider := providers.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Models.Assistant.Model)

	registry := tools.NewRegistry()
	triage.RegisterBuiltinTools(registry)

	mcpCfgs, err := cfg.MCPServerConfigs()
	if err != nil {
		return fmt.Errorf("load mcp config: %w", err)
	}
	mcpMgr := mcp.NewManager(registry, mcpCfgs)
	if err := mcpMgr.Start(ctx); err != nil {
		// Tool servers are optional; the pipeline runs with whatever
		// connected.
		slog.Warn("some mcp servers failed to start", "error", err)
	}
	defer mcpMgr.Stop()

	if cfg.MCPConfigPath != "" {
		go func() {
			if err := mcpMgr.WatchConfig(ctx, config.ExpandHome(cfg.MCPConfigPath)); err != nil {
				slog.Warn("mcp config watcher stopped", "error", err)
			}
		}()
	}

	queue := bus.NewQueue(cfg.Limits.QueueCapacity)
	manager := channels.NewManager()

	if cfg.Channels.Slack.Enabled {
		manager.Register(slack.New(cfg.Channels.Slack, queue))
	}
	if cfg.Channels.Discord.Enabled {
		d, err := discord.New(cfg.Channels.Discord, queue)
		if err != nil {
			return fmt.Errorf("create discord adapter: %w", err)
		}
		manager.Register(d)
	}
	if len(manager.Names()) == 0 {
		return fmt.Errorf("no channels enabled; set TRIAGEBOT_SLACK_APP_TOKEN/TRIAGEBOT_SLACK_BOT_TOKEN or TRIAGEBOT_DISCORD_TOKEN")
	}

	classifier := triage.NewClassifier(provider, cfg.Models.Classifier, cfg.Limits.ClassifierRetries)
	assistant := triage.NewAssistant(provider, cfg.Models.Assistant, registry, cfg.Limits)
	dispatcher := triage.NewDispatcher(stores, manager)
	orch := triage.NewOrchestrator(cfg.Limits, stores, classifier, assistant, dispatcher)

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	slog.Info("triagebot ready",
		"version", Version,
		"platforms", manager.Names(),
		"tools", registry.List(),
		"db", cfg.Database.Driver)

	// Blocks until the context is cancelled, then drains in-flight runs.
	orch.Serve(ctx, queue)

	slog.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.StopAll(stopCtx); err != nil {
		slog.Warn("channel shutdown", "error", err)
	}
	if err := shutdownTelemetry(stopCtx); err != nil {
		slog.Warn("telemetry shutdown", "error", err)
	}
	return nil
}
