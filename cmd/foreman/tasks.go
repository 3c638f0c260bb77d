package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	tasksPlanID string
	tasksJSON   bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List recorded tasks",
	Long: `List tasks from the persisted state, optionally scoped to one plan.

Examples:
  foreman tasks --plan plan-1a2b3c4d
  foreman tasks --json | jq '.[] | select(.status == "failed")'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStateDB()
		if err != nil {
			return err
		}
		if db == nil {
			fmt.Println("No recorded tasks.")
			return nil
		}
		defer db.Close()

		tasks, err := db.ListTasksByPlan(tasksPlanID)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		if tasksJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tasks)
		}

		if len(tasks) == 0 {
			fmt.Println("No recorded tasks.")
			return nil
		}
		for _, task := range tasks {
			displayTask(&task)
		}
		return nil
	},
}

func init() {
	tasksCmd.Flags().StringVar(&tasksPlanID, "plan", "", "Only tasks belonging to this plan")
	tasksCmd.Flags().BoolVar(&tasksJSON, "json", false, "Output in JSON format")
}
