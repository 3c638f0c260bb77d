package orchestrator

import "errors"

// Sentinel errors for the orchestrator's public contract. Callers match
// with errors.Is.
var (
	// ErrPlanNotFound indicates the referenced plan does not exist.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrTaskNotFound indicates the referenced task does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidDependency indicates a referenced dependency id is absent.
	ErrInvalidDependency = errors.New("invalid dependency")
	// ErrCyclicDependency indicates adding the task would create a cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")
	// ErrTaskNotReady indicates the task is not pending/queued or has an
	// incomplete dependency.
	ErrTaskNotReady = errors.New("task not ready")
	// ErrAlreadyDeployed indicates a live worker session already serves
	// this task.
	ErrAlreadyDeployed = errors.New("task already deployed")
	// ErrNoActiveWorker indicates the task or id has no live session.
	ErrNoActiveWorker = errors.New("no active worker")
	// ErrTaskNotFailed indicates retry was requested for a task that has
	// not failed.
	ErrTaskNotFailed = errors.New("task has not failed")
	// ErrWorkspaceProvisioning wraps workspace provisioning failures.
	ErrWorkspaceProvisioning = errors.New("workspace provisioning failed")
	// ErrExecutorDispatch wraps executor dispatch failures.
	ErrExecutorDispatch = errors.New("executor dispatch failed")
	// ErrWorkerLimit indicates the concurrent worker cap is reached.
	ErrWorkerLimit = errors.New("concurrent worker limit reached")
)
