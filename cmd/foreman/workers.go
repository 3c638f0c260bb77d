package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwhitten/foreman/pkg/models"
)

var (
	workersTaskID string
	workersJSON   bool
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List recorded worker sessions",
	Long: `List worker sessions from the persisted state, including sessions
replaced by retries, optionally scoped to one task.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStateDB()
		if err != nil {
			return err
		}
		if db == nil {
			fmt.Println("No recorded workers.")
			return nil
		}
		defer db.Close()

		var workers []models.WorkerState
		if workersTaskID != "" {
			workers, err = db.ListWorkersByTask(workersTaskID)
		} else {
			workers, err = db.ListWorkers()
		}
		if err != nil {
			return fmt.Errorf("list workers: %w", err)
		}

		if workersJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(workers)
		}

		if len(workers) == 0 {
			fmt.Println("No recorded workers.")
			return nil
		}
		for _, w := range workers {
			displayWorker(&w)
		}
		return nil
	},
}

func init() {
	workersCmd.Flags().StringVar(&workersTaskID, "task", "", "Only workers that served this task")
	workersCmd.Flags().BoolVar(&workersJSON, "json", false, "Output in JSON format")
}

func displayWorker(w *models.WorkerState) {
	glyph := "•"
	switch w.Status {
	case models.WorkerCompleted:
		glyph = color.GreenString("✓")
	case models.WorkerError:
		glyph = color.RedString("✗")
	case models.WorkerRunning:
		glyph = color.CyanString("▶")
	}
	line := fmt.Sprintf("%s %s task=%s [%s] started %s",
		glyph, w.ID, w.TaskID, w.Status, w.StartedAt.Local().Format(time.DateTime))
	if w.Error != "" {
		line += color.RedString(" — %s", summarize(w.Error, 60))
	}
	fmt.Println(line)
}
