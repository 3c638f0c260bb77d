package models

import "time"

// WorkerStatus represents the current state of a worker session.
type WorkerStatus string

const (
	// WorkerCreated indicates the session exists but has not started.
	WorkerCreated WorkerStatus = "created"
	// WorkerRunning indicates the session is inside an execution turn.
	WorkerRunning WorkerStatus = "running"
	// WorkerIdle indicates the session is waiting for its next instruction.
	WorkerIdle WorkerStatus = "idle"
	// WorkerWaitingApproval indicates a privileged operation needs sign-off.
	WorkerWaitingApproval WorkerStatus = "waiting_approval"
	// WorkerPaused indicates the session was paused by the user.
	WorkerPaused WorkerStatus = "paused"
	// WorkerCompleted indicates the session finished its task. Terminal.
	WorkerCompleted WorkerStatus = "completed"
	// WorkerError indicates the session failed. Terminal.
	WorkerError WorkerStatus = "error"
)

// Valid returns true if the status is a known value.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerCreated, WorkerRunning, WorkerIdle, WorkerWaitingApproval,
		WorkerPaused, WorkerCompleted, WorkerError:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are accepted.
func (s WorkerStatus) Terminal() bool {
	return s == WorkerCompleted || s == WorkerError
}

// WorkerState is a read-only snapshot of a worker session, suitable for
// dashboards and persistence. The live state machine lives in
// internal/worker; this struct carries no synchronization.
type WorkerState struct {
	// ID is the unique identifier for this worker session.
	ID string `json:"id"`
	// TaskID is the task this session serves.
	TaskID string `json:"task_id"`
	// PlanID is the owning plan, if any.
	PlanID string `json:"plan_id,omitempty"`
	// Status is the current session state.
	Status WorkerStatus `json:"status"`
	// WorkspacePath is the isolated worktree assigned to this session.
	WorkspacePath string `json:"workspace_path,omitempty"`
	// Executing is true strictly between execution start and end callbacks.
	// It is independent of Status: a session can be idle while the agent
	// finishes a long internal operation.
	Executing bool `json:"executing"`
	// LastActivityAt is the last time the session did anything observable.
	LastActivityAt time.Time `json:"last_activity_at"`
	// LastOutputAt is the last time streamed output was observed.
	LastOutputAt time.Time `json:"last_output_at,omitempty"`
	// ExecutionStartedAt is when the current execution turn began.
	ExecutionStartedAt time.Time `json:"execution_started_at,omitempty"`
	// Error holds the failure message when Status is error.
	Error string `json:"error,omitempty"`
	// PendingMessages is the number of undelivered inbound messages.
	PendingMessages int `json:"pending_messages"`
	// StartedAt is when the session was created.
	StartedAt time.Time `json:"started_at"`
}
