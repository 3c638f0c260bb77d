package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwhitten/foreman/internal/config"
	"github.com/mwhitten/foreman/internal/state"
	"github.com/mwhitten/foreman/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent plans and their tasks",
	Long: `Display the persisted orchestration state.

Shows recent plans, their tasks, and the workers that served them, read
from the project database (falling back to the global one).`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openStateDB()
	if err != nil {
		return err
	}
	if db == nil {
		fmt.Println("No recorded state. Run 'foreman run <task>' to start.")
		return nil
	}
	defer db.Close()

	plans, err := db.ListPlans()
	if err != nil {
		return fmt.Errorf("list plans: %w", err)
	}
	if len(plans) == 0 {
		fmt.Println("No recorded plans.")
		return nil
	}

	for _, plan := range plans {
		displayPlan(&plan)
		tasks, err := db.ListTasksByPlan(plan.ID)
		if err != nil {
			return fmt.Errorf("list tasks for %s: %w", plan.ID, err)
		}
		for _, task := range tasks {
			displayTask(&task)
		}
		fmt.Println()
	}
	return nil
}

// openStateDB opens whichever database the read commands should
// inspect, or nil when none exists.
func openStateDB() (*state.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return openReadableDB(cfg, cwd)
}

func displayPlan(plan *models.Plan) {
	fmt.Printf("%s %s %s (%d tasks, created %s)\n",
		planStatusGlyph(plan.Status),
		color.CyanString(plan.ID),
		plan.Name,
		len(plan.TaskIDs),
		plan.CreatedAt.Local().Format(time.DateTime))
}

func displayTask(task *models.Task) {
	line := fmt.Sprintf("  %s %s [%s] %s",
		taskStatusGlyph(task.Status), task.ID, task.Status, summarize(task.Description, 60))
	if len(task.DependsOn) > 0 {
		line += fmt.Sprintf(" (after %s)", strings.Join(task.DependsOn, ", "))
	}
	if task.Error != "" {
		line += color.RedString(" — %s", summarize(task.Error, 60))
	}
	if task.BlockedReason != "" {
		line += color.YellowString(" — %s", task.BlockedReason)
	}
	fmt.Println(line)
}

func planStatusGlyph(s models.PlanStatus) string {
	switch s {
	case models.PlanCompleted:
		return color.GreenString("✓")
	case models.PlanFailed:
		return color.RedString("✗")
	case models.PlanActive:
		return color.CyanString("▶")
	case models.PlanPaused:
		return color.YellowString("⏸")
	default:
		return "•"
	}
}

func taskStatusGlyph(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	case models.TaskStatusRunning:
		return color.CyanString("▶")
	case models.TaskStatusBlocked:
		return color.YellowString("⊘")
	default:
		return "•"
	}
}

// summarize trims a description to one short line.
func summarize(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}
