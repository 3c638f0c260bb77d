package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mwhitten/foreman/pkg/models"
)

// CreatePlan inserts a new plan.
func (db *DB) CreatePlan(p *models.Plan) error {
	var completedAt any
	if p.CompletedAt != nil {
		completedAt = formatTime(*p.CompletedAt)
	}

	_, err := db.Exec(`
		INSERT INTO plans (id, name, description, status, base_branch, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, string(p.Status), p.BaseBranch,
		formatTime(p.CreatedAt), completedAt)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by ID, including its task IDs in creation
// order. Returns nil if not found.
func (db *DB) GetPlan(id string) (*models.Plan, error) {
	row := db.QueryRow(`
		SELECT id, name, description, status, base_branch, created_at, completed_at
		FROM plans WHERE id = ?`, id)

	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	rows, err := db.Query(`SELECT id FROM tasks WHERE plan_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("get plan tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return nil, fmt.Errorf("scan plan task: %w", err)
		}
		p.TaskIDs = append(p.TaskIDs, taskID)
	}
	return p, rows.Err()
}

// UpdatePlan updates an existing plan's mutable fields.
func (db *DB) UpdatePlan(p *models.Plan) error {
	var completedAt any
	if p.CompletedAt != nil {
		completedAt = formatTime(*p.CompletedAt)
	}

	result, err := db.Exec(`
		UPDATE plans SET name = ?, description = ?, status = ?, base_branch = ?, completed_at = ?
		WHERE id = ?`,
		p.Name, p.Description, string(p.Status), p.BaseBranch, completedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("plan not found: %s", p.ID)
	}
	return nil
}

// ListPlans returns all plans, newest first.
func (db *DB) ListPlans() ([]models.Plan, error) {
	rows, err := db.Query(`
		SELECT id, name, description, status, base_branch, created_at, completed_at
		FROM plans ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (*models.Plan, error) {
	var p models.Plan
	var status, createdAt string
	var description, baseBranch, completedAt sql.NullString

	if err := s.Scan(&p.ID, &p.Name, &description, &status, &baseBranch,
		&createdAt, &completedAt); err != nil {
		return nil, err
	}

	p.Description = description.String
	p.BaseBranch = baseBranch.String
	p.Status = models.PlanStatus(status)

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	p.CreatedAt = t
	p.CompletedAt = parseNullableTime(completedAt)
	return &p, nil
}

// CreateTask inserts a new task.
func (db *DB) CreateTask(t *models.Task) error {
	dependsOn, err := json.Marshal(t.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	targetFiles, err := json.Marshal(t.TargetFiles)
	if err != nil {
		return fmt.Errorf("marshal target_files: %w", err)
	}

	var completedAt any
	if t.CompletedAt != nil {
		completedAt = formatTime(*t.CompletedAt)
	}

	_, err = db.Exec(`
		INSERT INTO tasks (id, plan_id, name, description, status, depends_on, agent,
			worker_id, priority, target_files, session_ref, blocked_reason, error, seq,
			created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PlanID, t.Name, t.Description, string(t.Status), string(dependsOn),
		t.Agent, t.WorkerID, string(t.Priority), string(targetFiles), t.SessionRef,
		t.BlockedReason, t.Error, t.Seq, formatTime(t.CreatedAt), completedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil if not found.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, plan_id, name, description, status, depends_on, agent, worker_id,
			priority, target_files, session_ref, blocked_reason, error, seq,
			created_at, completed_at
		FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask updates an existing task's mutable fields.
func (db *DB) UpdateTask(t *models.Task) error {
	dependsOn, err := json.Marshal(t.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	targetFiles, err := json.Marshal(t.TargetFiles)
	if err != nil {
		return fmt.Errorf("marshal target_files: %w", err)
	}

	var completedAt any
	if t.CompletedAt != nil {
		completedAt = formatTime(*t.CompletedAt)
	}

	result, err := db.Exec(`
		UPDATE tasks SET name = ?, description = ?, status = ?, depends_on = ?,
			agent = ?, worker_id = ?, priority = ?, target_files = ?, session_ref = ?,
			blocked_reason = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		t.Name, t.Description, string(t.Status), string(dependsOn), t.Agent,
		t.WorkerID, string(t.Priority), string(targetFiles), t.SessionRef,
		t.BlockedReason, t.Error, completedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task not found: %s", t.ID)
	}
	return nil
}

// ListTasksByPlan returns a plan's tasks in creation order. An empty
// planID returns every task.
func (db *DB) ListTasksByPlan(planID string) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, plan_id, name, description, status, depends_on, agent, worker_id,
			priority, target_files, session_ref, blocked_reason, error, seq,
			created_at, completed_at
		FROM tasks WHERE (? = '' OR plan_id = ?) ORDER BY seq`, planID, planID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func scanTask(s scanner) (*models.Task, error) {
	var t models.Task
	var status, priority, createdAt string
	var planID, name, description, dependsOn, agent, workerID sql.NullString
	var targetFiles, sessionRef, blockedReason, errText, completedAt sql.NullString

	if err := s.Scan(&t.ID, &planID, &name, &description, &status, &dependsOn,
		&agent, &workerID, &priority, &targetFiles, &sessionRef, &blockedReason,
		&errText, &t.Seq, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	t.PlanID = planID.String
	t.Name = name.String
	t.Description = description.String
	t.Status = models.TaskStatus(status)
	t.Agent = agent.String
	t.WorkerID = workerID.String
	t.Priority = models.Priority(priority)
	t.SessionRef = sessionRef.String
	t.BlockedReason = blockedReason.String
	t.Error = errText.String

	if dependsOn.Valid && dependsOn.String != "" {
		if err := json.Unmarshal([]byte(dependsOn.String), &t.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal depends_on: %w", err)
		}
	}
	if targetFiles.Valid && targetFiles.String != "" {
		if err := json.Unmarshal([]byte(targetFiles.String), &t.TargetFiles); err != nil {
			return nil, fmt.Errorf("unmarshal target_files: %w", err)
		}
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	t.CreatedAt = created
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

// SaveWorker inserts or replaces a worker record.
func (db *DB) SaveWorker(w *models.WorkerState) error {
	var lastActivity any
	if !w.LastActivityAt.IsZero() {
		lastActivity = formatTime(w.LastActivityAt)
	}

	_, err := db.Exec(`
		INSERT INTO workers (id, task_id, plan_id, status, workspace_path, error, started_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			workspace_path = excluded.workspace_path,
			error = excluded.error,
			last_activity_at = excluded.last_activity_at`,
		w.ID, w.TaskID, w.PlanID, string(w.Status), w.WorkspacePath, w.Error,
		formatTime(w.StartedAt), lastActivity)
	if err != nil {
		return fmt.Errorf("save worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker record by ID. Returns nil if not found.
func (db *DB) GetWorker(id string) (*models.WorkerState, error) {
	row := db.QueryRow(`
		SELECT id, task_id, plan_id, status, workspace_path, error, started_at, last_activity_at
		FROM workers WHERE id = ?`, id)

	w, err := scanWorker(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get worker: %w", err)
	}
	return w, nil
}

// ListWorkersByTask returns all worker records for a task, including
// the sessions replaced by retries.
func (db *DB) ListWorkersByTask(taskID string) ([]models.WorkerState, error) {
	rows, err := db.Query(`
		SELECT id, task_id, plan_id, status, workspace_path, error, started_at, last_activity_at
		FROM workers WHERE task_id = ? ORDER BY started_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []models.WorkerState
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		workers = append(workers, *w)
	}
	return workers, rows.Err()
}

// ListWorkers returns every recorded worker session, oldest first.
func (db *DB) ListWorkers() ([]models.WorkerState, error) {
	rows, err := db.Query(`
		SELECT id, task_id, plan_id, status, workspace_path, error, started_at, last_activity_at
		FROM workers ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []models.WorkerState
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		workers = append(workers, *w)
	}
	return workers, rows.Err()
}

func scanWorker(s scanner) (*models.WorkerState, error) {
	var w models.WorkerState
	var status, startedAt string
	var planID, workspacePath, errText, lastActivity sql.NullString

	if err := s.Scan(&w.ID, &w.TaskID, &planID, &status, &workspacePath,
		&errText, &startedAt, &lastActivity); err != nil {
		return nil, err
	}

	w.PlanID = planID.String
	w.Status = models.WorkerStatus(status)
	w.WorkspacePath = workspacePath.String
	w.Error = errText.String

	started, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	w.StartedAt = started
	if t := parseNullableTime(lastActivity); t != nil {
		w.LastActivityAt = *t
	}
	return &w, nil
}
