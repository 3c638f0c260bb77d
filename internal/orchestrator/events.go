// Package orchestrator owns plans, tasks, and worker sessions, and
// implements dependency-based scheduling, deployment, and lifecycle
// transitions.
package orchestrator

import (
	"time"
)

// EventType tags an orchestrator event.
type EventType string

const (
	// EventTaskQueued indicates a task became ready and was queued.
	EventTaskQueued EventType = "task_queued"
	// EventTaskStarted indicates a task's worker began execution.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskBlocked indicates a task can no longer be satisfied.
	EventTaskBlocked EventType = "task_blocked"
	// EventTaskCancelled indicates a task was cancelled by the caller.
	EventTaskCancelled EventType = "task_cancelled"
	// EventWorkerIdle indicates a worker went quiet while not executing.
	EventWorkerIdle EventType = "worker_idle"
	// EventWorkerNeedsApproval indicates a worker awaits human sign-off.
	EventWorkerNeedsApproval EventType = "worker_needs_approval"
	// EventWorkerUnhealthy indicates a worker passed the stuck ceiling.
	EventWorkerUnhealthy EventType = "worker_unhealthy"
	// EventPlanStarted indicates a plan moved to active.
	EventPlanStarted EventType = "plan_started"
	// EventPlanPaused indicates a plan was paused.
	EventPlanPaused EventType = "plan_paused"
	// EventPlanCompleted indicates every task in a plan completed.
	EventPlanCompleted EventType = "plan_completed"
	// EventPlanFailed indicates a plan cannot make further progress.
	EventPlanFailed EventType = "plan_failed"
	// EventSubTaskSpawned indicates a worker spawned a sub-task.
	EventSubTaskSpawned EventType = "subtask_spawned"
	// EventSubTaskCompleted indicates a sub-task reached a terminal state.
	EventSubTaskCompleted EventType = "subtask_completed"
)

// Event is one entry in the orchestrator's event stream. Consumers such
// as dashboards reduce these into view state; the audit trail mirrors
// them.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// PlanID is the related plan, if applicable.
	PlanID string
	// TaskID is the related task, if applicable.
	TaskID string
	// WorkerID is the related worker session, if applicable.
	WorkerID string
	// SubTaskID is the related sub-task, if applicable.
	SubTaskID string
	// Message provides additional context.
	Message string
	// Err contains error details for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
