package models

import "time"

// PlanStatus represents the current state of a plan.
type PlanStatus string

const (
	// PlanDraft indicates the plan is saved but not started.
	PlanDraft PlanStatus = "draft"
	// PlanActive indicates the plan is running; ready tasks auto-deploy.
	PlanActive PlanStatus = "active"
	// PlanPaused indicates the plan is suspended; no new deployments.
	PlanPaused PlanStatus = "paused"
	// PlanCompleted indicates every task in the plan completed. Terminal.
	PlanCompleted PlanStatus = "completed"
	// PlanFailed indicates the plan cannot make further progress. Terminal.
	PlanFailed PlanStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanDraft, PlanActive, PlanPaused, PlanCompleted, PlanFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the plan has reached a final status.
func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanFailed
}

// Plan is a named collection of tasks scheduled by dependency order.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Description explains what the plan accomplishes.
	Description string `json:"description,omitempty"`
	// Status is the current state, driven only by the orchestrator.
	Status PlanStatus `json:"status"`
	// BaseBranch is the branch task worktrees fork from.
	BaseBranch string `json:"base_branch,omitempty"`
	// TaskIDs lists the tasks belonging to this plan in creation order.
	TaskIDs []string `json:"task_ids,omitempty"`
	// CreatedAt is when the plan was saved.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the plan reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
