package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// CheckBackendCLI verifies that the named agent CLI is available in
// PATH. Returns an error with installation instructions if not found.
func CheckBackendCLI(backend string) error {
	binary := backend
	if binary == "" {
		binary = "claude"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"Foreman dispatches tasks to coding agent CLIs.\n"+
			"Install the %s CLI or switch backends with\n"+
			"  backend.default in ~/.config/foreman/config.yaml", binary, binary)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Multi-agent task orchestrator",
	Long: `Foreman orchestrates coding agents across plans of dependent tasks.

Each deployed task gets an isolated git worktree and a dedicated worker
session. Tasks declare dependencies; foreman deploys whatever is ready,
watches worker health, and advances the plan as tasks complete.

Core capabilities:
- Plans of DAG-dependent tasks with priority-ordered deployment
- One isolated worker per task in its own git worktree
- Worker health classification (idle, progress due, stuck)
- Bounded-depth sub-task spawning with async result delivery
- SQLite-backed state and audit trail`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(plansCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
