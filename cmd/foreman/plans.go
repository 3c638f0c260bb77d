package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var plansJSON bool

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List recorded plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStateDB()
		if err != nil {
			return err
		}
		if db == nil {
			fmt.Println("No recorded plans.")
			return nil
		}
		defer db.Close()

		plans, err := db.ListPlans()
		if err != nil {
			return fmt.Errorf("list plans: %w", err)
		}

		if plansJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(plans)
		}

		if len(plans) == 0 {
			fmt.Println("No recorded plans.")
			return nil
		}
		for _, plan := range plans {
			extra := ""
			if plan.CompletedAt != nil {
				extra = fmt.Sprintf(", finished %s", plan.CompletedAt.Local().Format(time.DateTime))
			}
			fmt.Printf("%s %s %s [%s] (%d tasks%s)\n",
				planStatusGlyph(plan.Status), plan.ID, plan.Name, plan.Status,
				len(plan.TaskIDs), extra)
		}
		return nil
	},
}

func init() {
	plansCmd.Flags().BoolVar(&plansJSON, "json", false, "Output in JSON format")
}
