package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwhitten/foreman/internal/agents"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List available agents",
	Long: `List the agents tasks can be assigned to.

The catalog merges the built-in agents with repo-defined ones from
.foreman/agents.yaml. Repo agents override built-ins with the same id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}

		discovery := agents.NewDiscovery(cwd)
		for _, agent := range discovery.ListAgents() {
			source := ""
			if agent.Source == agents.SourceRepo {
				source = color.CyanString(" (repo)")
			}
			fmt.Printf("%s%s\n", color.New(color.Bold).Sprint(agent.ID), source)
			if agent.Description != "" {
				fmt.Printf("    %s\n", agent.Description)
			}
			if agent.Backend != "" {
				fmt.Printf("    backend: %s\n", agent.Backend)
			}
		}
		return nil
	},
}
