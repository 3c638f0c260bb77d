package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/mwhitten/foreman/internal/agents"
	"github.com/mwhitten/foreman/internal/executor"
	"github.com/mwhitten/foreman/internal/safety"
	"github.com/mwhitten/foreman/internal/subtask"
	"github.com/mwhitten/foreman/pkg/models"
)

// SpawnSubTask validates depth against the safety limits and registers
// a sub-task for the parent worker. Depth is threaded explicitly from
// the caller; it is never read from shared state.
func (s *Service) SpawnSubTask(req subtask.SpawnRequest) (models.SubTask, error) {
	s.mu.Lock()
	_, live := s.sessions[req.ParentWorkerID]
	s.mu.Unlock()
	if !live {
		return models.SubTask{}, ErrNoActiveWorker
	}

	st, err := s.subtasks.Create(req)
	if err != nil {
		return models.SubTask{}, err
	}

	s.emit(Event{Type: EventSubTaskSpawned, SubTaskID: st.ID, WorkerID: req.ParentWorkerID,
		Message: fmt.Sprintf("depth %d, %s context", st.Depth, st.Context)})
	return *st, nil
}

// ExecuteSubTask runs a spawned sub-task to completion and returns its
// terminal result. The parent's update queue receives the result
// regardless of whether the caller blocks here.
func (s *Service) ExecuteSubTask(ctx context.Context, id string) (*models.SubTaskResult, error) {
	result, err := s.subtasks.Execute(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(Event{Type: EventSubTaskCompleted, SubTaskID: id, Message: string(result.Status)})
	return result, nil
}

// AwaitSubTasks blocks until the named sub-tasks finish or the timeout
// elapses, returning whatever terminal results exist at that point.
// Hitting the deadline is not an error.
func (s *Service) AwaitSubTasks(ctx context.Context, ids []string, timeout time.Duration) map[string]*models.SubTaskResult {
	return s.subtasks.Await(ctx, ids, timeout)
}

// RunSubTask executes one sub-task turn in the parent's workspace. It
// implements subtask.Runner; the executor call runs outside the service
// lock like every other dispatch.
func (s *Service) RunSubTask(ctx context.Context, st *models.SubTask) (*models.SubTaskResult, error) {
	workspacePath := ""
	s.mu.Lock()
	if sess, ok := s.sessions[st.ParentWorkerID]; ok {
		workspacePath = sess.Snapshot().WorkspacePath
	}
	s.mu.Unlock()

	agent := agents.Descriptor{ID: st.AgentType}
	if s.agents != nil {
		if d, ok := s.agents.Get(st.AgentType); ok {
			agent = d
		}
	}

	model := ""
	if s.selector != nil {
		sel := s.selector.Select(st.Prompt, st.AgentType)
		if agent.Backend == "" {
			agent.Backend = sel.Backend
		}
		model = sel.Model
	}

	prompt := st.Prompt
	if st.ExpectedOutput != "" {
		prompt += "\n\nExpected output: " + st.ExpectedOutput
	}

	depthRemaining := s.limits.MaxDepth(safety.SpawnContext(st.Context)) - st.Depth
	instructions := executor.Instructions(executor.InstructionOptions{
		WorkspacePath:         workspacePath,
		AllowSubTasks:         depthRemaining > 0,
		SubTaskDepthRemaining: depthRemaining,
	})

	result, err := s.exec.Execute(ctx, executor.Request{
		TaskID:                 st.ID,
		Prompt:                 prompt,
		WorkspacePath:          workspacePath,
		Agent:                  agent,
		Model:                  model,
		AdditionalInstructions: instructions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutorDispatch, err)
	}

	return &models.SubTaskResult{
		Status: result.Status,
		Output: result.Output,
		Error:  result.Error,
	}, nil
}

// Verify Service implements subtask.Runner at compile time.
var _ subtask.Runner = (*Service)(nil)
