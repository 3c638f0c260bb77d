package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mwhitten/foreman/internal/graph"
	"github.com/mwhitten/foreman/pkg/models"
)

// CreatePlan saves a new plan in draft status.
func (s *Service) CreatePlan(name, description, baseBranch string) (models.Plan, error) {
	plan := &models.Plan{
		ID:          "plan-" + uuid.New().String()[:8],
		Name:        name,
		Description: description,
		Status:      models.PlanDraft,
		BaseBranch:  baseBranch,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.plans[plan.ID] = plan
	snapshot := *plan
	s.mu.Unlock()

	s.persistPlan(&snapshot, true)
	return snapshot, nil
}

// TaskSpec describes a task to add.
type TaskSpec struct {
	// PlanID is the owning plan; empty for ad-hoc tasks.
	PlanID string
	// Name is an optional short label.
	Name string
	// Description is the prompt body. Required.
	Description string
	// Agent is the optional agent identifier.
	Agent string
	// Dependencies lists task IDs that must complete first.
	Dependencies []string
	// TargetFiles hints which files the task touches.
	TargetFiles []string
	// Priority breaks deployment ties. Defaults to normal.
	Priority models.Priority
}

// AddTask validates and registers a new task in pending status.
func (s *Service) AddTask(spec TaskSpec) (models.Task, error) {
	if spec.Description == "" {
		return models.Task{}, fmt.Errorf("task description is required")
	}
	if s.agents != nil {
		if err := s.agents.Validate(spec.Agent); err != nil {
			return models.Task{}, fmt.Errorf("invalid agent: %w", err)
		}
	}

	priority := spec.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if spec.PlanID != "" {
		if _, ok := s.plans[spec.PlanID]; !ok {
			return models.Task{}, ErrPlanNotFound
		}
	}

	s.seq++
	task := &models.Task{
		ID:          "task-" + uuid.New().String()[:8],
		PlanID:      spec.PlanID,
		Name:        spec.Name,
		Description: spec.Description,
		Status:      models.TaskStatusPending,
		DependsOn:   append([]string(nil), spec.Dependencies...),
		Agent:       spec.Agent,
		Priority:    priority,
		TargetFiles: append([]string(nil), spec.TargetFiles...),
		Seq:         s.seq,
		CreatedAt:   time.Now(),
	}

	if err := s.graph.AddTask(task); err != nil {
		s.seq--
		switch {
		case errors.Is(err, graph.ErrUnknownDependency):
			return models.Task{}, fmt.Errorf("%w: %v", ErrInvalidDependency, err)
		case errors.Is(err, graph.ErrCycleDetected):
			return models.Task{}, fmt.Errorf("%w: %v", ErrCyclicDependency, err)
		default:
			return models.Task{}, err
		}
	}

	s.tasks[task.ID] = task
	if task.PlanID != "" {
		s.plans[task.PlanID].TaskIDs = append(s.plans[task.PlanID].TaskIDs, task.ID)
	}

	snapshot := *task
	s.persistTask(&snapshot, true)
	return snapshot, nil
}

// GetReadyTasks returns pending/queued tasks whose dependencies are all
// completed, optionally scoped to a plan, in deployment order: priority
// rank first, then creation order. No side effects.
func (s *Service) GetReadyTasks(planID string) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyTasksLocked(planID)
}

// readyTasksLocked computes the ordered ready set. Caller holds mu.
func (s *Service) readyTasksLocked(planID string) []models.Task {
	ready := s.graph.GetReady(planID)

	tasks := make([]models.Task, 0, len(ready))
	for _, t := range ready {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		ri, rj := tasks[i].Priority.Rank(), tasks[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return tasks[i].Seq < tasks[j].Seq
	})
	return tasks
}

// StartPlan moves a plan to active and deploys all currently-ready
// tasks unless manual-deploy mode is on.
func (s *Service) StartPlan(ctx context.Context, planID string) error {
	s.mu.Lock()
	plan, ok := s.plans[planID]
	if !ok {
		s.mu.Unlock()
		return ErrPlanNotFound
	}
	if plan.Status.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("plan %s is %s", planID, plan.Status)
	}
	plan.Status = models.PlanActive
	snapshot := *plan
	ready := s.readyTasksLocked(planID)
	s.mu.Unlock()

	s.persistPlan(&snapshot, false)
	s.emit(Event{Type: EventPlanStarted, PlanID: planID, Message: plan.Name})

	if s.manualDeploy {
		return nil
	}
	for _, t := range ready {
		if _, err := s.Deploy(ctx, t.ID); err != nil {
			// Deployment failures mark the task failed; the plan keeps
			// going with whatever else is ready.
			continue
		}
	}
	return nil
}

// PausePlan suspends an active plan. Running workers finish their
// current turn; no new deployments happen until the plan restarts.
func (s *Service) PausePlan(planID string) error {
	s.mu.Lock()
	plan, ok := s.plans[planID]
	if !ok {
		s.mu.Unlock()
		return ErrPlanNotFound
	}
	if plan.Status != models.PlanActive {
		s.mu.Unlock()
		return fmt.Errorf("plan %s is %s, not active", planID, plan.Status)
	}
	plan.Status = models.PlanPaused
	snapshot := *plan
	s.mu.Unlock()

	s.persistPlan(&snapshot, false)
	s.emit(Event{Type: EventPlanPaused, PlanID: planID})
	return nil
}

// refreshPlanStatusLocked checks whether the plan has finished: it
// completes when every task completed, and fails when a task failed and
// every remaining task is blocked or failed. Caller holds mu; returns
// the event to emit after unlocking, if any.
func (s *Service) refreshPlanStatusLocked(planID string) *Event {
	plan, ok := s.plans[planID]
	if !ok || plan.Status.Terminal() || len(plan.TaskIDs) == 0 {
		return nil
	}

	allCompleted := true
	sawFailed := false
	progressPossible := false
	for _, id := range plan.TaskIDs {
		t, ok := s.tasks[id]
		if !ok {
			continue
		}
		switch t.Status {
		case models.TaskStatusCompleted:
		case models.TaskStatusFailed:
			allCompleted = false
			sawFailed = true
		case models.TaskStatusBlocked:
			allCompleted = false
		default:
			allCompleted = false
			progressPossible = true
		}
	}

	now := time.Now()
	if allCompleted {
		plan.Status = models.PlanCompleted
		plan.CompletedAt = &now
		snapshot := *plan
		s.persistPlan(&snapshot, false)
		return &Event{Type: EventPlanCompleted, PlanID: planID}
	}
	if sawFailed && !progressPossible {
		plan.Status = models.PlanFailed
		plan.CompletedAt = &now
		snapshot := *plan
		s.persistPlan(&snapshot, false)
		return &Event{Type: EventPlanFailed, PlanID: planID, Message: "no retriable path remains"}
	}
	return nil
}
