package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwhitten/foreman/internal/config"
	"github.com/mwhitten/foreman/internal/orchestrator"
	"github.com/mwhitten/foreman/pkg/models"
)

var (
	runPlanName   string
	runBaseBranch string
	runAgent      string
	runPriority   string
	runChain      bool
	runTimeout    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <task> [task...]",
	Short: "Run one or more tasks to completion",
	Long: `Create a plan from the given task descriptions, deploy every ready
task into its own git worktree, and drive the plan to completion.

Each argument becomes one task. Tasks are independent by default and run
in parallel up to the concurrency limit; with --chain each task depends
on the previous one and they run in order.

Examples:
  foreman run "add retry logic to the fetcher"
  foreman run --chain "write the parser" "add tests for the parser"
  foreman run --agent reviewer --priority high "review the auth module"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPlanName, "plan", "", "Plan name (defaults to the first task)")
	runCmd.Flags().StringVar(&runBaseBranch, "base-branch", "", "Branch worktrees are created from")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "Agent identifier applied to every task")
	runCmd.Flags().StringVar(&runPriority, "priority", "", "Task priority: critical, high, normal, low")
	runCmd.Flags().BoolVar(&runChain, "chain", false, "Make each task depend on the previous one")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 2*time.Hour, "Abort the run after this long")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := openWritableDB(cfg, cwd)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	svc, selector, err := buildService(cfg, cwd, db, false)
	if err != nil {
		return err
	}
	defer selector.Close()
	svc.Start()
	defer svc.Stop()

	planName := runPlanName
	if planName == "" {
		planName = args[0]
	}
	plan, err := svc.CreatePlan(planName, "", runBaseBranch)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}

	var prev string
	taskCount := 0
	for _, desc := range args {
		spec := orchestrator.TaskSpec{
			PlanID:      plan.ID,
			Description: desc,
			Agent:       runAgent,
			Priority:    models.Priority(runPriority),
		}
		if runChain && prev != "" {
			spec.Dependencies = []string{prev}
		}
		task, err := svc.AddTask(spec)
		if err != nil {
			return fmt.Errorf("add task %q: %w", desc, err)
		}
		prev = task.ID
		taskCount++
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	fmt.Printf("Plan %s: %d task(s)\n\n", color.CyanString(plan.ID), taskCount)
	if err := svc.StartPlan(ctx, plan.ID); err != nil {
		return fmt.Errorf("start plan: %w", err)
	}

	return watchPlan(ctx, svc, plan.ID)
}

// watchPlan consumes orchestrator events until the plan reaches a
// terminal state. Successful worker turns are acknowledged by completing
// their task, which unblocks and deploys dependents.
func watchPlan(ctx context.Context, svc *orchestrator.Service, planID string) error {
	for {
		select {
		case ev := <-svc.Events():
			if done, err := handleEvent(ctx, svc, planID, ev); done {
				return err
			}
		case <-ctx.Done():
			return fmt.Errorf("run aborted: %w", ctx.Err())
		}
	}
}

func handleEvent(ctx context.Context, svc *orchestrator.Service, planID string, ev orchestrator.Event) (bool, error) {
	switch ev.Type {
	case orchestrator.EventTaskStarted:
		printEvent("▶", fmt.Sprintf("%s deployed (worker %s)", ev.TaskID, ev.WorkerID), color.FgCyan)
	case orchestrator.EventTaskQueued:
		printEvent("•", fmt.Sprintf("%s ready", ev.TaskID), color.FgWhite)
	case orchestrator.EventWorkerIdle:
		// The turn finished. A success or partial result closes the
		// task; a failed result never reaches here.
		if ev.Message == string(models.ResultPartial) {
			printEvent("⚠", fmt.Sprintf("%s reported a partial result", ev.TaskID), color.FgYellow)
		}
		if err := svc.CompleteTask(ctx, ev.TaskID); err != nil {
			printEvent("⚠", fmt.Sprintf("complete %s: %v", ev.TaskID, err), color.FgYellow)
		}
	case orchestrator.EventTaskCompleted:
		printEvent("✓", fmt.Sprintf("%s completed", ev.TaskID), color.FgGreen)
	case orchestrator.EventTaskFailed:
		printEvent("✗", fmt.Sprintf("%s failed: %v", ev.TaskID, ev.Err), color.FgRed)
	case orchestrator.EventTaskBlocked:
		printEvent("⊘", fmt.Sprintf("%s blocked: %s", ev.TaskID, ev.Message), color.FgYellow)
	case orchestrator.EventWorkerUnhealthy:
		printEvent("⚠", fmt.Sprintf("worker %s unhealthy: %s", ev.WorkerID, ev.Message), color.FgYellow)
	case orchestrator.EventSubTaskSpawned:
		printEvent("↳", fmt.Sprintf("sub-task %s spawned by %s", ev.SubTaskID, ev.WorkerID), color.FgCyan)
	case orchestrator.EventPlanCompleted:
		if ev.PlanID == planID {
			fmt.Println()
			printEvent("✓", "plan completed", color.FgGreen)
			return true, nil
		}
	case orchestrator.EventPlanFailed:
		if ev.PlanID == planID {
			fmt.Println()
			printEvent("✗", fmt.Sprintf("plan failed: %s", ev.Message), color.FgRed)
			return true, fmt.Errorf("plan %s failed", planID)
		}
	}
	return false, nil
}

// printEvent prints a status line with color
func printEvent(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	c.Printf("%s %s\n", symbol, message)
}
