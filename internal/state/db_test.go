package state

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mwhitten/foreman/pkg/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestPlanRoundTrip(t *testing.T) {
	db := testDB(t)

	plan := &models.Plan{
		ID:         "plan-1",
		Name:       "refactor auth",
		Status:     models.PlanDraft,
		BaseBranch: "main",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := db.CreatePlan(plan); err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}

	got, err := db.GetPlan("plan-1")
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetPlan() returned nil")
	}
	if got.Name != plan.Name || got.Status != models.PlanDraft || got.BaseBranch != "main" {
		t.Errorf("GetPlan() = %+v", got)
	}

	now := time.Now().UTC().Truncate(time.Second)
	plan.Status = models.PlanCompleted
	plan.CompletedAt = &now
	if err := db.UpdatePlan(plan); err != nil {
		t.Fatalf("UpdatePlan() error = %v", err)
	}

	got, _ = db.GetPlan("plan-1")
	if got.Status != models.PlanCompleted || got.CompletedAt == nil {
		t.Errorf("updated plan = %+v", got)
	}
}

func TestGetPlanMissing(t *testing.T) {
	db := testDB(t)
	got, err := db.GetPlan("nope")
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetPlan() = %+v, want nil", got)
	}
	if err := db.UpdatePlan(&models.Plan{ID: "nope"}); err == nil {
		t.Error("UpdatePlan() on missing plan should fail")
	}
}

func TestTaskRoundTripWithDependencies(t *testing.T) {
	db := testDB(t)

	if err := db.CreatePlan(&models.Plan{ID: "p1", Name: "p", Status: models.PlanDraft, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	task := &models.Task{
		ID:          "t2",
		PlanID:      "p1",
		Name:        "write tests",
		Description: "add coverage for the parser",
		Status:      models.TaskStatusPending,
		DependsOn:   []string{"t1"},
		Priority:    models.PriorityHigh,
		TargetFiles: []string{"parser.go", "parser_test.go"},
		Seq:         2,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	got, err := db.GetTask("t2")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0] != "t1" {
		t.Errorf("DependsOn = %v, want [t1]", got.DependsOn)
	}
	if len(got.TargetFiles) != 2 {
		t.Errorf("TargetFiles = %v", got.TargetFiles)
	}
	if got.Priority != models.PriorityHigh {
		t.Errorf("Priority = %v, want high", got.Priority)
	}

	task.Status = models.TaskStatusFailed
	task.Error = "compile error"
	if err := db.UpdateTask(task); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	got, _ = db.GetTask("t2")
	if got.Status != models.TaskStatusFailed || got.Error != "compile error" {
		t.Errorf("updated task = %+v", got)
	}
}

func TestPlanTaskIDsInCreationOrder(t *testing.T) {
	db := testDB(t)

	db.CreatePlan(&models.Plan{ID: "p1", Name: "p", Status: models.PlanDraft, CreatedAt: time.Now()})
	for i, id := range []string{"a", "b", "c"} {
		if err := db.CreateTask(&models.Task{
			ID: id, PlanID: "p1", Description: id,
			Status: models.TaskStatusPending, Seq: int64(i), CreatedAt: time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	plan, err := db.GetPlan("p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.TaskIDs) != 3 || plan.TaskIDs[0] != "a" || plan.TaskIDs[2] != "c" {
		t.Errorf("TaskIDs = %v, want [a b c]", plan.TaskIDs)
	}

	tasks, err := db.ListTasksByPlan("p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 {
		t.Errorf("ListTasksByPlan() = %d tasks, want 3", len(tasks))
	}
}

func TestWorkerUpsert(t *testing.T) {
	db := testDB(t)

	w := &models.WorkerState{
		ID:        "w1",
		TaskID:    "t1",
		Status:    models.WorkerRunning,
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := db.SaveWorker(w); err != nil {
		t.Fatalf("SaveWorker() error = %v", err)
	}

	w.Status = models.WorkerCompleted
	if err := db.SaveWorker(w); err != nil {
		t.Fatalf("SaveWorker() upsert error = %v", err)
	}

	got, err := db.GetWorker("w1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.WorkerCompleted {
		t.Errorf("Status = %v, want completed", got.Status)
	}

	workers, err := db.ListWorkersByTask("t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(workers) != 1 {
		t.Errorf("ListWorkersByTask() = %d workers, want 1", len(workers))
	}

	all, err := db.ListWorkers()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("ListWorkers() = %d workers, want 1", len(all))
	}
}

func TestAuditQueryFilters(t *testing.T) {
	db := testDB(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []AuditEvent{
		{Type: "task_completed", Category: "task", Severity: SeverityInfo, Target: "t1", Message: "task t1 done", CreatedAt: base},
		{Type: "task_failed", Category: "task", Severity: SeverityError, Target: "t2", Message: "task t2 compile error", CreatedAt: base.Add(time.Minute)},
		{Type: "worker_unhealthy", Category: "worker", Severity: SeverityWarning, Target: "w1", Message: "no activity", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		if err := db.RecordAudit(ev); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter AuditFilter
		want   int
	}{
		{"no filter", AuditFilter{}, 3},
		{"by category", AuditFilter{Categories: []string{"task"}}, 2},
		{"by severity", AuditFilter{Severities: []AuditSeverity{SeverityError}}, 1},
		{"by type", AuditFilter{Types: []string{"worker_unhealthy"}}, 1},
		{"by time range", AuditFilter{Since: base.Add(30 * time.Second), Until: base.Add(90 * time.Second)}, 1},
		{"by text", AuditFilter{Search: "compile"}, 1},
		{"by target text", AuditFilter{Search: "w1"}, 1},
		{"with limit", AuditFilter{Limit: 2}, 2},
		{"combined", AuditFilter{Categories: []string{"task"}, Severities: []AuditSeverity{SeverityInfo}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.QueryAudit(tt.filter)
			if err != nil {
				t.Fatalf("QueryAudit() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("QueryAudit() = %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestAuditExportFormats(t *testing.T) {
	db := testDB(t)
	db.RecordAudit(AuditEvent{Type: "plan_started", Category: "plan", Target: "p1", Message: "plan p1 started"})

	var buf bytes.Buffer
	if err := db.ExportAudit(&buf, AuditFilter{}, ExportJSON); err != nil {
		t.Fatalf("JSON export error = %v", err)
	}
	var decoded []AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON export not parseable: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Type != "plan_started" {
		t.Errorf("JSON export = %+v", decoded)
	}

	buf.Reset()
	if err := db.ExportAudit(&buf, AuditFilter{}, ExportCSV); err != nil {
		t.Fatalf("CSV export error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "id,type,category") {
		t.Errorf("CSV export = %q", buf.String())
	}

	buf.Reset()
	if err := db.ExportAudit(&buf, AuditFilter{}, ExportMarkdown); err != nil {
		t.Fatalf("Markdown export error = %v", err)
	}
	if !strings.Contains(buf.String(), "| plan_started |") {
		t.Errorf("Markdown export = %q", buf.String())
	}

	if err := db.ExportAudit(&buf, AuditFilter{}, ExportFormat("xml")); err == nil {
		t.Error("unknown format should fail")
	}
}
