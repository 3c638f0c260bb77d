// Package models defines the shared data types for foreman.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusQueued indicates the task is ready and waiting for a worker slot.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusRunning indicates a worker session is executing the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusBlocked indicates the task cannot proceed.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusQueued, TaskStatusRunning,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// Priority orders tasks that become ready at the same time.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Rank returns the deployment ordering for the priority; lower deploys first.
// Unknown values rank with normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// Task represents a unit of work assignable to a worker session.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// PlanID is the owning plan, empty for ad-hoc tasks.
	PlanID string `json:"plan_id,omitempty"`
	// Name is an optional short human label.
	Name string `json:"name,omitempty"`
	// Description is the prompt body handed to the agent.
	Description string `json:"description"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// DependsOn lists task IDs that must complete before this task is ready.
	DependsOn []string `json:"depends_on,omitempty"`
	// Agent is the optional agent identifier to execute with.
	Agent string `json:"agent,omitempty"`
	// WorkerID is the worker session currently serving this task, if any.
	WorkerID string `json:"worker_id,omitempty"`
	// Priority breaks ties when multiple tasks become ready together.
	Priority Priority `json:"priority,omitempty"`
	// TargetFiles hints which files the task is expected to touch.
	TargetFiles []string `json:"target_files,omitempty"`
	// SessionRef is an optional transcript or session reference.
	SessionRef string `json:"session_ref,omitempty"`
	// BlockedReason explains why the task is blocked, when it is.
	BlockedReason string `json:"blocked_reason,omitempty"`
	// Error contains the failure message if the task failed.
	Error string `json:"error,omitempty"`
	// Seq is a monotonically increasing creation counter used for
	// deterministic ordering among equal priorities.
	Seq int64 `json:"seq"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task completed, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Deployable returns true if the task is in a state deploy accepts.
func (t *Task) Deployable() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusQueued
}
