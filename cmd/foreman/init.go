package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	initForce        bool
	initWithExamples bool
	initSkipChecks   bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a foreman project",
	Long: `Initialize a directory for use with foreman.

This command sets up everything needed to run foreman:
  - Verifies prerequisites (git, the default agent CLI)
  - Creates the .foreman directory structure
  - Optionally creates example agent and backend manifests

The directory argument is optional and defaults to the current directory.

Examples:
  foreman init                  # Initialize current directory
  foreman init ./myproject      # Initialize specific directory
  foreman init --with-examples  # Create example manifests`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initWithExamples, "with-examples", false, "Create example agent and backend manifests")
	initCmd.Flags().BoolVar(&initSkipChecks, "skip-checks", false, "Skip prerequisite checks")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing foreman in %s...\n\n", absPath)

	foremanDir := filepath.Join(absPath, ".foreman")
	if _, err := os.Stat(foremanDir); err == nil && !initForce {
		fmt.Printf("Directory already initialized. Use --force to reinitialize.\n")
		return nil
	}

	if !initSkipChecks {
		if _, err := exec.LookPath("git"); err != nil {
			printStatus("✗", "Git not found", color.FgRed)
			return fmt.Errorf("git is required for worktree provisioning")
		}
		printStatus("✓", "Git found", color.FgGreen)

		if err := CheckBackendCLI(""); err != nil {
			printStatus("⚠", "Agent CLI not found (install it before running tasks)", color.FgYellow)
		} else {
			printStatus("✓", "Agent CLI found", color.FgGreen)
		}

		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			printStatus("⚠", "ANTHROPIC_API_KEY not set (only needed for the api backend)", color.FgYellow)
		} else {
			printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
		}
	}

	if err := os.MkdirAll(foremanDir, 0755); err != nil {
		return fmt.Errorf("creating .foreman directory: %w", err)
	}
	printStatus("✓", "Created .foreman directory", color.FgGreen)

	if initWithExamples {
		if err := writeExampleManifests(foremanDir); err != nil {
			return err
		}
		printStatus("✓", "Created example manifests in .foreman/", color.FgGreen)
	}

	fmt.Printf("\nDone. Try: foreman run \"describe a task here\"\n")
	return nil
}

const exampleAgentsManifest = `# Repo-defined agents. These merge with (and override) the built-ins.
agents:
  - id: reviewer
    name: Code Reviewer
    description: Reviews diffs for correctness and style
    backend: claude
`

const exampleBackendsManifest = `# Per-agent backend routing. The default entry applies when no
# per-agent entry matches.
default:
  backend: claude
agents:
  reviewer:
    backend: claude
`

func writeExampleManifests(foremanDir string) error {
	files := map[string]string{
		"agents.yaml":   exampleAgentsManifest,
		"backends.yaml": exampleBackendsManifest,
	}
	for name, content := range files {
		path := filepath.Join(foremanDir, name)
		if _, err := os.Stat(path); err == nil && !initForce {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
