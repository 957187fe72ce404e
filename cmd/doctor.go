package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/triagebot/internal/config"
	"github.com/nextlevelbuilder/triagebot/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("triagebot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	driver := cfg.Database.Driver
	if driver == "" {
		driver = "sqlite"
	}
	fmt.Printf("    %-12s %s\n", "Driver:", driver)
	if stores, dbErr := store.Open(cfg.Database); dbErr != nil {
		fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", dbErr)
	} else {
		stores.Close()
		fmt.Printf("    %-12s OK (migrations applied)\n", "Status:")
	}

	fmt.Println()
	fmt.Println("  Provider:")
	fmt.Printf("    %-12s %s\n", "API base:", cfg.Provider.APIBase)
	checkSecret("API key", cfg.Provider.APIKey != "")
	fmt.Printf("    %-12s classifier=%s assistant=%s\n", "Models:",
		cfg.Models.Classifier.Model, cfg.Models.Assistant.Model)

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Slack", cfg.Channels.Slack.Enabled,
		cfg.Channels.Slack.AppToken != "" && cfg.Channels.Slack.BotToken != "")
	checkChannel("Discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token != "")

	fmt.Println()
	fmt.Println("  MCP servers:")
	mcpCfgs, mcpErr := cfg.MCPServerConfigs()
	if mcpErr != nil {
		fmt.Printf("    load error: %s\n", mcpErr)
	} else if len(mcpCfgs) == 0 {
		fmt.Println("    none configured")
	} else {
		for name, srv := range mcpCfgs {
			state := "enabled"
			if !srv.IsEnabled() {
				state = "disabled"
			}
			fmt.Printf("    %-12s %s (%s)\n", name+":", srv.Transport, state)
		}
	}

	fmt.Println()
	fmt.Println("  Telemetry:")
	if cfg.Telemetry.Endpoint == "" {
		fmt.Println("    disabled")
	} else {
		fmt.Printf("    OTLP %s -> %s\n", cfg.Telemetry.Protocol, cfg.Telemetry.Endpoint)
	}
}

func checkSecret(name string, present bool) {
	if present {
		fmt.Printf("    %-12s configured\n", name+":")
	} else {
		fmt.Printf("    %-12s MISSING\n", name+":")
	}
}

func checkChannel(name string, enabled, hasCreds bool) {
	switch {
	case enabled && hasCreds:
		fmt.Printf("    %-12s enabled\n", name+":")
	case enabled:
		fmt.Printf("    %-12s enabled but MISSING credentials\n", name+":")
	default:
		fmt.Printf("    %-12s disabled\n", name+":")
	}
}
