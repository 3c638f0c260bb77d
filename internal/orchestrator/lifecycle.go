package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/mwhitten/foreman/pkg/models"
)

// CompleteTask marks a task completed, retires its worker session, and
// recomputes readiness for the owning plan. Newly ready tasks are
// auto-deployed in priority order when the plan is active and
// manual-deploy mode is off. Fails with ErrNoActiveWorker if no live
// session serves the task.
func (s *Service) CompleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()

	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	workerID, live := s.taskWorker[taskID]
	if !live {
		s.mu.Unlock()
		return ErrNoActiveWorker
	}

	now := time.Now()
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	task.Error = ""
	s.graph.MarkComplete(taskID)

	sess := s.sessions[workerID]
	s.retireWorkerLocked(taskID, workerID)

	taskSnapshot := *task
	planID := task.PlanID

	// The status write happens before readiness recomputation, so newly
	// ready tasks observe the post-completion state.
	var ready []models.Task
	planActive := false
	if plan, ok := s.plans[planID]; ok && plan.Status == models.PlanActive {
		planActive = true
		ready = s.readyTasksLocked(planID)
	}
	for i := range ready {
		if t, ok := s.tasks[ready[i].ID]; ok && t.Status == models.TaskStatusPending {
			t.Status = models.TaskStatusQueued
			ready[i].Status = models.TaskStatusQueued
		}
	}

	planEvent := s.refreshPlanStatusLocked(planID)
	s.mu.Unlock()

	if sess != nil {
		sess.Complete()
		s.persistWorker(sess.Snapshot())
	}
	s.persistTask(&taskSnapshot, false)
	s.emit(Event{Type: EventTaskCompleted, PlanID: planID, TaskID: taskID, WorkerID: workerID})

	for _, t := range ready {
		s.emit(Event{Type: EventTaskQueued, PlanID: planID, TaskID: t.ID})
	}

	if planActive && !s.manualDeploy {
		for _, t := range ready {
			if _, err := s.Deploy(ctx, t.ID); err != nil {
				continue
			}
		}
	}

	if planEvent != nil {
		s.emit(*planEvent)
	}
	return nil
}

// CancelTask cancels a task. The live worker, if any, is signalled to
// stop and retired optimistically without waiting for the process to
// die. With remove=false the task resets to pending; with remove=true
// the task is deleted, its dependency edges are severed, and tasks
// depending on it become blocked with a missing-dependency reason.
func (s *Service) CancelTask(taskID string, remove bool) error {
	s.mu.Lock()

	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}

	workerID := s.taskWorker[taskID]
	sess := s.sessions[workerID]
	s.retireWorkerLocked(taskID, workerID)
	if sess != nil {
		// Terminal before the lock is released, so an in-flight turn's
		// result is recognized as stale when it lands.
		sess.Error("cancelled")
	}

	planID := task.PlanID
	var blocked []models.Task

	if remove {
		dependents := s.graph.Remove(taskID)
		for _, depID := range dependents {
			dep, ok := s.tasks[depID]
			if !ok || dep.Status == models.TaskStatusCompleted {
				continue
			}
			dep.Status = models.TaskStatusBlocked
			dep.BlockedReason = fmt.Sprintf("missing dependency %s", taskID)
			blocked = append(blocked, *dep)
		}
		delete(s.tasks, taskID)
		if plan, ok := s.plans[planID]; ok {
			plan.TaskIDs = removeID(plan.TaskIDs, taskID)
		}
	} else {
		task.Status = models.TaskStatusPending
		task.WorkerID = ""
		task.Error = ""
		s.graph.ClearComplete(taskID)
	}

	var taskSnapshot *models.Task
	if !remove {
		snap := *task
		taskSnapshot = &snap
	}
	planEvent := s.refreshPlanStatusLocked(planID)
	s.mu.Unlock()

	if sess != nil {
		s.persistWorker(sess.Snapshot())
	}
	if taskSnapshot != nil {
		s.persistTask(taskSnapshot, false)
	}
	s.emit(Event{Type: EventTaskCancelled, PlanID: planID, TaskID: taskID, WorkerID: workerID})

	for _, dep := range blocked {
		s.persistTask(&dep, false)
		s.emit(Event{Type: EventTaskBlocked, PlanID: dep.PlanID, TaskID: dep.ID,
			Message: dep.BlockedReason})
	}
	if planEvent != nil {
		s.emit(*planEvent)
	}
	return nil
}

// RetryTask resets a failed task and deploys it again. Fails with
// ErrTaskNotFailed when the task has not failed.
func (s *Service) RetryTask(ctx context.Context, taskID string) (models.WorkerState, error) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return models.WorkerState{}, ErrTaskNotFound
	}
	if task.Status != models.TaskStatusFailed {
		s.mu.Unlock()
		return models.WorkerState{}, fmt.Errorf("%w: task is %s", ErrTaskNotFailed, task.Status)
	}
	task.Status = models.TaskStatusPending
	task.WorkerID = ""
	task.Error = ""
	taskSnapshot := *task
	s.mu.Unlock()

	s.persistTask(&taskSnapshot, false)
	return s.Deploy(ctx, taskID)
}

// removeID drops one id from a slice, preserving order. The result is
// a fresh slice: plan snapshots handed out earlier alias the old
// backing array and must not observe the removal.
func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
