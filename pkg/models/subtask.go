package models

import "time"

// SpawnContext identifies who initiated a sub-task spawn chain.
// Depth limits differ by context.
type SpawnContext string

const (
	// SpawnOrchestrator marks spawns initiated by the orchestrator itself.
	SpawnOrchestrator SpawnContext = "orchestrator"
	// SpawnAgent marks spawns initiated by a running agent.
	SpawnAgent SpawnContext = "agent"
)

// SubTaskStatus represents the current state of a sub-task.
type SubTaskStatus string

const (
	SubTaskPending   SubTaskStatus = "pending"
	SubTaskRunning   SubTaskStatus = "running"
	SubTaskCompleted SubTaskStatus = "completed"
	SubTaskFailed    SubTaskStatus = "failed"
	SubTaskCancelled SubTaskStatus = "cancelled"
)

// Terminal returns true if the sub-task has reached a final status.
func (s SubTaskStatus) Terminal() bool {
	return s == SubTaskCompleted || s == SubTaskFailed || s == SubTaskCancelled
}

// ResultStatus is the terminal outcome reported by an executor.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultPartial ResultStatus = "partial"
	ResultFailed  ResultStatus = "failed"
)

// SubTaskResult is the outcome of an executed sub-task.
type SubTaskResult struct {
	// Status is the terminal outcome.
	Status ResultStatus `json:"status"`
	// Output is the textual output produced by the child agent.
	Output string `json:"output,omitempty"`
	// Error holds failure details when Status is failed.
	Error string `json:"error,omitempty"`
	// Metadata carries backend-specific extras.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SubTask is an ad-hoc child task spawned by a running worker (A2A),
// outside any plan's dependency graph.
type SubTask struct {
	// ID is the unique identifier for this sub-task.
	ID string `json:"id"`
	// ParentWorkerID is the worker session that requested the spawn.
	ParentWorkerID string `json:"parent_worker_id"`
	// ParentTaskID is the task the parent worker serves.
	ParentTaskID string `json:"parent_task_id"`
	// PlanID is the owning plan; may be synthetic for ad-hoc chains.
	PlanID string `json:"plan_id,omitempty"`
	// AgentType is the agent identifier the child should run with.
	AgentType string `json:"agent_type"`
	// Prompt is the child's task description.
	Prompt string `json:"prompt"`
	// ExpectedOutput describes what the parent wants back.
	ExpectedOutput string `json:"expected_output,omitempty"`
	// Depth is the recursion level of this spawn, threaded explicitly
	// through the call chain.
	Depth int `json:"depth"`
	// Context identifies who initiated the spawn chain.
	Context SpawnContext `json:"context"`
	// Status is the current state.
	Status SubTaskStatus `json:"status"`
	// Result is the terminal outcome, once available.
	Result *SubTaskResult `json:"result,omitempty"`
	// CreatedAt is when the sub-task was created.
	CreatedAt time.Time `json:"created_at"`
	// FinishedAt is when the sub-task reached a terminal status.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// UpdateType tags a TaskUpdate message.
type UpdateType string

const (
	UpdateCompleted UpdateType = "completed"
	UpdateFailed    UpdateType = "failed"
	UpdateIdle      UpdateType = "idle"
	UpdateProgress  UpdateType = "progress"
	UpdateError     UpdateType = "error"
)

// TaskUpdate is a directed message queued for a parent worker and
// consumed exactly once the next time that worker goes idle. Delivery
// is FIFO per worker.
type TaskUpdate struct {
	// Type is the kind of update.
	Type UpdateType `json:"type"`
	// WorkerID is the parent worker this update is addressed to.
	WorkerID string `json:"worker_id"`
	// SubTaskID is the originating sub-task, if any.
	SubTaskID string `json:"sub_task_id,omitempty"`
	// Result carries the sub-task outcome for completed/failed updates.
	Result *SubTaskResult `json:"result,omitempty"`
	// Error holds failure or health details.
	Error string `json:"error,omitempty"`
	// IdleReason explains an idle classification.
	IdleReason string `json:"idle_reason,omitempty"`
	// Progress is a percentage or free-form progress report.
	Progress string `json:"progress,omitempty"`
	// HighPriority marks updates the orchestrator should act on first.
	HighPriority bool `json:"high_priority,omitempty"`
	// Timestamp is when the update was queued.
	Timestamp time.Time `json:"timestamp"`
}
