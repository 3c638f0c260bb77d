package state

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// AuditSeverity grades audit events.
type AuditSeverity string

const (
	SeverityInfo    AuditSeverity = "info"
	SeverityWarning AuditSeverity = "warning"
	SeverityError   AuditSeverity = "error"
)

// AuditEvent is one entry in the audit trail. The orchestrator emits
// one per significant state transition.
type AuditEvent struct {
	// ID is assigned by the database.
	ID int64 `json:"id"`
	// Type names the transition, e.g. "task_completed".
	Type string `json:"type"`
	// Category groups related types: plan, task, worker, subtask.
	Category string `json:"category"`
	// Severity grades the event.
	Severity AuditSeverity `json:"severity"`
	// Actor identifies who or what caused the transition.
	Actor string `json:"actor,omitempty"`
	// Target is the affected plan, task, or worker ID.
	Target string `json:"target,omitempty"`
	// Message is the human-readable detail.
	Message string `json:"message,omitempty"`
	// CreatedAt is when the event was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// AuditFilter narrows audit queries. Zero-value fields match everything.
type AuditFilter struct {
	// Types restricts to the named event types.
	Types []string
	// Categories restricts to the named categories.
	Categories []string
	// Severities restricts to the named severities.
	Severities []AuditSeverity
	// Since excludes events before this time.
	Since time.Time
	// Until excludes events after this time.
	Until time.Time
	// Search matches a substring of the message or target.
	Search string
	// Limit caps the number of returned events; 0 means no cap.
	Limit int
}

// RecordAudit appends an event to the audit trail.
func (db *DB) RecordAudit(ev AuditEvent) error {
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO audit_events (type, category, severity, actor, target, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Type, ev.Category, string(ev.Severity), ev.Actor, ev.Target,
		ev.Message, formatTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// QueryAudit returns audit events matching the filter, oldest first.
func (db *DB) QueryAudit(filter AuditFilter) ([]AuditEvent, error) {
	var conds []string
	var args []any

	if len(filter.Types) > 0 {
		conds = append(conds, "type IN ("+placeholders(len(filter.Types))+")")
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}
	if len(filter.Categories) > 0 {
		conds = append(conds, "category IN ("+placeholders(len(filter.Categories))+")")
		for _, c := range filter.Categories {
			args = append(args, c)
		}
	}
	if len(filter.Severities) > 0 {
		conds = append(conds, "severity IN ("+placeholders(len(filter.Severities))+")")
		for _, s := range filter.Severities {
			args = append(args, string(s))
		}
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, formatTime(filter.Until))
	}
	if filter.Search != "" {
		conds = append(conds, "(message LIKE ? OR target LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := "SELECT id, type, category, severity, actor, target, message, created_at FROM audit_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(filter.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var severity, createdAt string
		var actor, target, message sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Category, &severity,
			&actor, &target, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Severity = AuditSeverity(severity)
		ev.Actor = actor.String
		ev.Target = target.String
		ev.Message = message.String
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		ev.CreatedAt = t
		events = append(events, ev)
	}
	return events, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ExportFormat selects the audit export encoding.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportCSV      ExportFormat = "csv"
	ExportMarkdown ExportFormat = "markdown"
)

// ExportAudit writes events matching the filter to w in the requested
// format.
func (db *DB) ExportAudit(w io.Writer, filter AuditFilter, format ExportFormat) error {
	events, err := db.QueryAudit(filter)
	if err != nil {
		return err
	}

	switch format {
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)

	case ExportCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"id", "type", "category", "severity", "actor", "target", "message", "created_at"}); err != nil {
			return err
		}
		for _, ev := range events {
			record := []string{
				strconv.FormatInt(ev.ID, 10), ev.Type, ev.Category,
				string(ev.Severity), ev.Actor, ev.Target, ev.Message,
				formatTime(ev.CreatedAt),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()

	case ExportMarkdown:
		if _, err := fmt.Fprintln(w, "| Time | Type | Category | Severity | Target | Message |"); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, "|------|------|----------|----------|--------|---------|"); err != nil {
			return err
		}
		for _, ev := range events {
			_, err := fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s |\n",
				formatTime(ev.CreatedAt), ev.Type, ev.Category, ev.Severity,
				ev.Target, strings.ReplaceAll(ev.Message, "|", "\\|"))
			if err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown export format: %s", format)
	}
}
