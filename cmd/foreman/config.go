package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwhitten/foreman/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	Long: `Display the effective configuration after merging defaults, the user
config, the project override, and environment variables.

Configuration is stored at ~/.config/foreman/config.yaml
Project-specific overrides can be placed in .foreman.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		displayConfig(cfg)
	},
}

// displayConfig prints all configuration values.
func displayConfig(cfg *config.Config) {
	// Mask API key if set
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("backend.default: %s\n", cfg.Backend.Default)
	fmt.Printf("backend.model: %s\n", cfg.Backend.Model)
	fmt.Printf("limits.orchestrator_max_depth: %d\n", cfg.Limits.OrchestratorMaxDepth)
	fmt.Printf("limits.agent_max_depth: %d\n", cfg.Limits.AgentMaxDepth)
	fmt.Printf("limits.max_concurrent_workers: %d\n", cfg.Limits.MaxConcurrentWorkers)
	fmt.Printf("health.tick_interval: %s\n", cfg.Health.TickInterval)
	fmt.Printf("health.idle_after: %s\n", cfg.Health.IdleAfter)
	fmt.Printf("health.progress_after: %s\n", cfg.Health.ProgressAfter)
	fmt.Printf("health.stuck_after: %s\n", cfg.Health.StuckAfter)
	fmt.Printf("workspace.base_dir: %s\n", cfg.Workspace.BaseDir)
	fmt.Printf("state.db_path: %s\n", cfg.State.DBPath)
	fmt.Printf("state.disabled: %t\n", cfg.State.Disabled)
}
