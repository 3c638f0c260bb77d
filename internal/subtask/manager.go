// Package subtask implements agent-to-agent delegation: ad-hoc child
// tasks spawned by running workers outside any plan's dependency graph.
package subtask

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwhitten/foreman/internal/safety"
	"github.com/mwhitten/foreman/internal/worker"
	"github.com/mwhitten/foreman/pkg/models"
)

// Runner executes one sub-task to completion. The orchestrator provides
// the implementation; the manager stays free of scheduling concerns.
type Runner interface {
	RunSubTask(ctx context.Context, st *models.SubTask) (*models.SubTaskResult, error)
}

// Manager owns the sub-task registry, validates spawn depth before any
// allocation, and routes every terminal result back to the parent
// worker's update queue.
type Manager struct {
	mu sync.Mutex

	limits   safety.Limits
	runner   Runner
	queues   *worker.Queues
	subtasks map[string]*models.SubTask

	// done channels close when the sub-task reaches a terminal status.
	done map[string]chan struct{}
}

// SpawnRequest describes one sub-task to create.
type SpawnRequest struct {
	// ParentWorkerID is the requesting worker session.
	ParentWorkerID string
	// ParentTaskID is the task the parent serves.
	ParentTaskID string
	// PlanID is the owning plan, if any.
	PlanID string
	// AgentType is the agent the child should run with.
	AgentType string
	// Prompt is the child's task description.
	Prompt string
	// ExpectedOutput describes what the parent wants back.
	ExpectedOutput string
	// Depth is the requester's current recursion level, threaded
	// explicitly through the call chain.
	Depth int
	// Context identifies who initiated the spawn chain.
	Context models.SpawnContext
}

// NewManager creates a sub-task manager.
func NewManager(limits safety.Limits, runner Runner, queues *worker.Queues) *Manager {
	return &Manager{
		limits:   limits,
		runner:   runner,
		queues:   queues,
		subtasks: make(map[string]*models.SubTask),
		done:     make(map[string]chan struct{}),
	}
}

// Create validates the spawn depth and registers a pending sub-task.
// Depth violations fail before any allocation.
func (m *Manager) Create(req SpawnRequest) (*models.SubTask, error) {
	if err := m.limits.CheckDepth(safety.SpawnContext(req.Context), req.Depth); err != nil {
		return nil, err
	}

	st := &models.SubTask{
		ID:             "subtask-" + uuid.New().String()[:8],
		ParentWorkerID: req.ParentWorkerID,
		ParentTaskID:   req.ParentTaskID,
		PlanID:         req.PlanID,
		AgentType:      req.AgentType,
		Prompt:         req.Prompt,
		ExpectedOutput: req.ExpectedOutput,
		Depth:          req.Depth + 1,
		Context:        req.Context,
		Status:         models.SubTaskPending,
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.subtasks[st.ID] = st
	m.done[st.ID] = make(chan struct{})
	m.mu.Unlock()

	log.Printf("[subtask] created %s parent=%s depth=%d context=%s",
		st.ID, req.ParentWorkerID, st.Depth, req.Context)
	return st, nil
}

// Execute runs a pending sub-task through the runner and returns its
// terminal result. The parent worker's queue always receives a
// TaskUpdate, regardless of whether the caller blocks on the result.
func (m *Manager) Execute(ctx context.Context, id string) (*models.SubTaskResult, error) {
	m.mu.Lock()
	st, ok := m.subtasks[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("unknown sub-task %s", id)
	}
	if st.Status != models.SubTaskPending {
		m.mu.Unlock()
		return nil, fmt.Errorf("sub-task %s is %s, not pending", id, st.Status)
	}
	st.Status = models.SubTaskRunning
	snapshot := *st
	m.mu.Unlock()

	result, err := m.runner.RunSubTask(ctx, &snapshot)
	if err != nil {
		result = &models.SubTaskResult{
			Status: models.ResultFailed,
			Error:  err.Error(),
		}
	}
	if result == nil {
		result = &models.SubTaskResult{
			Status: models.ResultFailed,
			Error:  "runner returned no result",
		}
	}

	m.finish(st, result)
	return result, nil
}

// Cancel marks a non-terminal sub-task cancelled and notifies the
// parent. In-flight runner work is stopped by the caller's context.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	st, ok := m.subtasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown sub-task %s", id)
	}
	if st.Status.Terminal() {
		m.mu.Unlock()
		return nil
	}
	now := time.Now()
	st.Status = models.SubTaskCancelled
	st.FinishedAt = &now
	done := m.done[id]
	parent := st.ParentWorkerID
	m.mu.Unlock()

	close(done)
	m.queues.Push(models.TaskUpdate{
		Type:      models.UpdateFailed,
		WorkerID:  parent,
		SubTaskID: id,
		Error:     "sub-task cancelled",
		Timestamp: now,
	})
	return nil
}

// finish records a terminal result and enqueues the parent update.
func (m *Manager) finish(st *models.SubTask, result *models.SubTaskResult) {
	now := time.Now()

	m.mu.Lock()
	if st.Status.Terminal() {
		// Cancelled while running; the late result is discarded.
		m.mu.Unlock()
		return
	}
	st.Result = result
	st.FinishedAt = &now
	if result.Status == models.ResultFailed {
		st.Status = models.SubTaskFailed
	} else {
		st.Status = models.SubTaskCompleted
	}
	done := m.done[st.ID]
	m.mu.Unlock()

	close(done)

	updateType := models.UpdateCompleted
	if result.Status == models.ResultFailed {
		updateType = models.UpdateFailed
	}
	m.queues.Push(models.TaskUpdate{
		Type:      updateType,
		WorkerID:  st.ParentWorkerID,
		SubTaskID: st.ID,
		Result:    result,
		Error:     result.Error,
		Timestamp: now,
	})
}

// Get returns a copy of the sub-task, or false if unknown.
func (m *Manager) Get(id string) (models.SubTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.subtasks[id]
	if !ok {
		return models.SubTask{}, false
	}
	return *st, true
}

// Await blocks until all named sub-tasks are terminal, the timeout
// elapses, or ctx is cancelled. It returns whatever terminal results
// exist at that point; hitting the deadline is not an error.
func (m *Manager) Await(ctx context.Context, ids []string, timeout time.Duration) map[string]*models.SubTaskResult {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for _, id := range ids {
		m.mu.Lock()
		done, ok := m.done[id]
		m.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case <-done:
		case <-deadline.C:
			return m.collect(ids)
		case <-ctx.Done():
			return m.collect(ids)
		}
	}
	return m.collect(ids)
}

// collect gathers terminal results for the named sub-tasks.
func (m *Manager) collect(ids []string) map[string]*models.SubTaskResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make(map[string]*models.SubTaskResult)
	for _, id := range ids {
		if st, ok := m.subtasks[id]; ok && st.Status.Terminal() && st.Result != nil {
			results[id] = st.Result
		}
	}
	return results
}
