package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwhitten/foreman/internal/state"
)

var (
	auditFormat     string
	auditOutput     string
	auditCategories []string
	auditSeverities []string
	auditSince      time.Duration
	auditSearch     string
	auditLimit      int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and export the audit trail",
	Long: `Query the orchestration audit trail and export it.

Every significant transition (task deployed, completed, failed, worker
unhealthy, plan finished) is mirrored into the audit table. Filters
narrow by category, severity, age, and message text.

Output formats: json (default), csv, markdown.

Examples:
  foreman audit --since 24h
  foreman audit --severity error,warning --format markdown
  foreman audit --category worker --search stuck --format csv -o audit.csv`,
	RunE: runAuditExport,
}

func init() {
	auditCmd.Flags().StringVar(&auditFormat, "format", "json", "Output format: json, csv, markdown")
	auditCmd.Flags().StringVarP(&auditOutput, "output", "o", "", "Write to a file instead of stdout")
	auditCmd.Flags().StringSliceVar(&auditCategories, "category", nil, "Filter by category: plan, task, worker, subtask")
	auditCmd.Flags().StringSliceVar(&auditSeverities, "severity", nil, "Filter by severity: info, warning, error")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only events newer than this, e.g. 24h")
	auditCmd.Flags().StringVar(&auditSearch, "search", "", "Substring match on message or target")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "Cap the number of events (0 = no cap)")
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	db, err := openStateDB()
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("no audit trail recorded yet")
	}
	defer db.Close()

	filter := state.AuditFilter{
		Categories: auditCategories,
		Search:     auditSearch,
		Limit:      auditLimit,
	}
	for _, sev := range auditSeverities {
		filter.Severities = append(filter.Severities, state.AuditSeverity(strings.TrimSpace(sev)))
	}
	if auditSince > 0 {
		filter.Since = time.Now().Add(-auditSince)
	}

	out := os.Stdout
	if auditOutput != "" {
		f, err := os.Create(auditOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := db.ExportAudit(out, filter, state.ExportFormat(auditFormat)); err != nil {
		return fmt.Errorf("export audit trail: %w", err)
	}
	return nil
}
