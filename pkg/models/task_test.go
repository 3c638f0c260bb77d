package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusQueued, TaskStatusRunning,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if TaskStatus("bogus").Valid() {
		t.Error("expected bogus status to be invalid")
	}
	if TaskStatus("").Valid() {
		t.Error("expected empty status to be invalid")
	}
}

func TestPriorityRank(t *testing.T) {
	tests := []struct {
		priority Priority
		rank     int
	}{
		{PriorityCritical, 0},
		{PriorityHigh, 1},
		{PriorityNormal, 2},
		{PriorityLow, 3},
		{Priority(""), 2},
		{Priority("unknown"), 2},
	}

	for _, tt := range tests {
		if got := tt.priority.Rank(); got != tt.rank {
			t.Errorf("Rank(%q) = %d, want %d", tt.priority, got, tt.rank)
		}
	}

	if PriorityCritical.Rank() >= PriorityHigh.Rank() {
		t.Error("critical must deploy before high")
	}
	if PriorityNormal.Rank() >= PriorityLow.Rank() {
		t.Error("normal must deploy before low")
	}
}

func TestTaskDeployable(t *testing.T) {
	tests := []struct {
		status     TaskStatus
		deployable bool
	}{
		{TaskStatusPending, true},
		{TaskStatusQueued, true},
		{TaskStatusRunning, false},
		{TaskStatusCompleted, false},
		{TaskStatusFailed, false},
		{TaskStatusBlocked, false},
	}

	for _, tt := range tests {
		task := &Task{Status: tt.status}
		if got := task.Deployable(); got != tt.deployable {
			t.Errorf("Deployable() with status %q = %v, want %v", tt.status, got, tt.deployable)
		}
	}
}

func TestWorkerStatusTerminal(t *testing.T) {
	if !WorkerCompleted.Terminal() || !WorkerError.Terminal() {
		t.Error("completed and error must be terminal")
	}
	for _, s := range []WorkerStatus{WorkerCreated, WorkerRunning, WorkerIdle, WorkerWaitingApproval, WorkerPaused} {
		if s.Terminal() {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}

func TestSubTaskStatusTerminal(t *testing.T) {
	if SubTaskPending.Terminal() || SubTaskRunning.Terminal() {
		t.Error("pending and running must be non-terminal")
	}
	for _, s := range []SubTaskStatus{SubTaskCompleted, SubTaskFailed, SubTaskCancelled} {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
}

func TestPlanStatusTerminal(t *testing.T) {
	if !PlanCompleted.Terminal() || !PlanFailed.Terminal() {
		t.Error("completed and failed must be terminal")
	}
	if PlanDraft.Terminal() || PlanActive.Terminal() || PlanPaused.Terminal() {
		t.Error("draft, active, and paused must be non-terminal")
	}
}
