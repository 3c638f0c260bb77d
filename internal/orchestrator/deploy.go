package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mwhitten/foreman/internal/agents"
	"github.com/mwhitten/foreman/internal/executor"
	"github.com/mwhitten/foreman/internal/worker"
	"github.com/mwhitten/foreman/pkg/models"
)

// Deploy provisions a workspace, creates a worker session, and
// asynchronously dispatches the task to the executor. The session is
// returned immediately; execution runs on its own goroutine. Fails with
// ErrTaskNotReady if the task is not pending/queued or a dependency is
// incomplete, and with ErrAlreadyDeployed if a live session serves it.
func (s *Service) Deploy(ctx context.Context, taskID string) (models.WorkerState, error) {
	s.mu.Lock()

	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return models.WorkerState{}, ErrTaskNotFound
	}
	if _, live := s.taskWorker[taskID]; live || s.claiming[taskID] {
		s.mu.Unlock()
		return models.WorkerState{}, ErrAlreadyDeployed
	}
	if !task.Deployable() {
		s.mu.Unlock()
		return models.WorkerState{}, fmt.Errorf("%w: task is %s", ErrTaskNotReady, task.Status)
	}
	for _, dep := range task.DependsOn {
		if d, ok := s.tasks[dep]; !ok || d.Status != models.TaskStatusCompleted {
			s.mu.Unlock()
			return models.WorkerState{}, fmt.Errorf("%w: dependency %s incomplete", ErrTaskNotReady, dep)
		}
	}
	if s.limits.MaxConcurrentWorkers > 0 && len(s.sessions) >= s.limits.MaxConcurrentWorkers {
		s.mu.Unlock()
		return models.WorkerState{}, ErrWorkerLimit
	}

	// Claim the task while the lock is released for provisioning.
	s.claiming[taskID] = true
	taskName := task.Name
	if taskName == "" {
		taskName = task.ID
	}
	baseBranch := ""
	if plan, ok := s.plans[task.PlanID]; ok {
		baseBranch = plan.BaseBranch
	}
	s.mu.Unlock()

	workspacePath := ""
	if s.provisioner != nil {
		path, err := s.provisioner.Provision(taskName, baseBranch)
		if err != nil {
			s.failTask(taskID, fmt.Errorf("%w: %v", ErrWorkspaceProvisioning, err), "")
			s.mu.Lock()
			delete(s.claiming, taskID)
			s.mu.Unlock()
			return models.WorkerState{}, fmt.Errorf("%w: %v", ErrWorkspaceProvisioning, err)
		}
		workspacePath = path
	}

	sess := worker.NewSession(taskID, task.PlanID, workspacePath)
	execCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	delete(s.claiming, taskID)
	task = s.tasks[taskID]
	if task == nil || !task.Deployable() {
		// Cancelled or mutated while provisioning.
		s.mu.Unlock()
		cancel()
		if workspacePath != "" && s.provisioner != nil {
			s.provisioner.Remove(workspacePath)
		}
		return models.WorkerState{}, fmt.Errorf("%w: task changed during provisioning", ErrTaskNotReady)
	}
	task.Status = models.TaskStatusRunning
	task.WorkerID = sess.ID()
	s.sessions[sess.ID()] = sess
	s.taskWorker[taskID] = sess.ID()
	s.cancels[sess.ID()] = cancel
	taskSnapshot := *task
	s.mu.Unlock()

	s.monitor.Track(sess)
	s.persistTask(&taskSnapshot, false)
	s.persistWorker(sess.Snapshot())
	s.emit(Event{Type: EventTaskStarted, PlanID: taskSnapshot.PlanID, TaskID: taskID, WorkerID: sess.ID()})

	go s.execute(execCtx, sess, taskSnapshot)

	return sess.Snapshot(), nil
}

// execute runs one executor turn for a deployed task. It never holds
// the service lock while the executor is working.
func (s *Service) execute(ctx context.Context, sess *worker.Session, task models.Task) {
	messages, err := sess.Start()
	if err != nil {
		// Session already terminal, nothing to run.
		return
	}
	sess.BeginExecution()

	prompt := task.Description
	for _, msg := range messages {
		prompt += "\n\nOrchestrator message: " + msg
	}
	// Queued updates (sub-task results, health notices) are consumed
	// exactly once, on the transition into this turn.
	for _, update := range s.queues.Drain(sess.ID()) {
		prompt += "\n\n" + describeUpdate(update)
	}

	agent := agents.Descriptor{ID: task.Agent}
	if s.agents != nil {
		if d, ok := s.agents.Get(task.Agent); ok {
			agent = d
		}
	}

	model := ""
	if s.selector != nil {
		sel := s.selector.Select(task.Description, task.Agent)
		if agent.Backend == "" {
			agent.Backend = sel.Backend
		}
		model = sel.Model
	}

	depthRemaining := s.limits.AgentMaxDepth
	instructions := executor.Instructions(executor.InstructionOptions{
		WorkspacePath:         sess.Snapshot().WorkspacePath,
		AllowSubTasks:         depthRemaining > 0,
		SubTaskDepthRemaining: depthRemaining,
		TargetFiles:           task.TargetFiles,
	})

	result, err := s.exec.Execute(ctx, executor.Request{
		TaskID:                 task.ID,
		Prompt:                 prompt,
		WorkspacePath:          sess.Snapshot().WorkspacePath,
		Agent:                  agent,
		Model:                  model,
		AdditionalInstructions: instructions,
		OnOutput:               func(string) { sess.RecordOutput() },
	})

	sess.EndExecution()

	if err != nil {
		s.failTask(task.ID, fmt.Errorf("%w: %v", ErrExecutorDispatch, err), sess.ID())
		return
	}
	s.finishTurn(sess, task.ID, result)
}

// finishTurn applies an executor result. A result whose worker was
// retired while the turn was in flight is stale and discarded.
func (s *Service) finishTurn(sess *worker.Session, taskID string, result *executor.Result) {
	s.mu.Lock()
	live := s.taskWorker[taskID] == sess.ID()
	s.mu.Unlock()
	if !live || sess.Status().Terminal() {
		log.Printf("[orchestrator] discarding late result for task %s", taskID)
		return
	}

	switch result.Status {
	case models.ResultFailed:
		errText := result.Error
		if errText == "" {
			errText = "agent reported failure"
		}
		s.failTask(taskID, fmt.Errorf("%s", errText), sess.ID())
	default:
		// The turn ended; the session idles until completeTask or a new
		// instruction. Partial results surface through the idle update.
		if err := sess.Idle(); err != nil {
			return
		}
		s.persistWorker(sess.Snapshot())
		s.emit(Event{Type: EventWorkerIdle, WorkerID: sess.ID(), TaskID: taskID,
			Message: string(result.Status)})
	}
}

// failTask marks a task failed, records the error on its session, and
// checks the owning plan for a terminal transition. A failure reported
// by a worker no longer registered for the task is stale and discarded.
func (s *Service) failTask(taskID string, taskErr error, workerID string) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok || task.Status == models.TaskStatusCompleted {
		s.mu.Unlock()
		return
	}
	if workerID != "" && s.taskWorker[taskID] != workerID {
		s.mu.Unlock()
		log.Printf("[orchestrator] discarding late failure for task %s from retired worker %s",
			taskID, workerID)
		return
	}
	task.Status = models.TaskStatusFailed
	task.Error = taskErr.Error()
	if workerID == "" {
		workerID = s.taskWorker[taskID]
	}
	sess := s.sessions[workerID]
	s.retireWorkerLocked(taskID, workerID)
	taskSnapshot := *task
	planEvent := s.refreshPlanStatusLocked(task.PlanID)
	s.mu.Unlock()

	if sess != nil {
		sess.Error(taskErr.Error())
		s.persistWorker(sess.Snapshot())
	}
	s.persistTask(&taskSnapshot, false)
	s.emit(Event{Type: EventTaskFailed, PlanID: taskSnapshot.PlanID, TaskID: taskID,
		WorkerID: workerID, Err: taskErr})
	if planEvent != nil {
		s.emit(*planEvent)
	}
}

// retireWorkerLocked removes a worker's registrations. Caller holds mu.
// Updates still queued for the worker can no longer be delivered; they
// are logged instead of dropped silently.
func (s *Service) retireWorkerLocked(taskID, workerID string) {
	if workerID == "" {
		return
	}
	if cancel, ok := s.cancels[workerID]; ok {
		cancel()
		delete(s.cancels, workerID)
	}
	delete(s.sessions, workerID)
	if s.taskWorker[taskID] == workerID {
		delete(s.taskWorker, taskID)
	}
	s.monitor.Untrack(workerID)
	for _, update := range s.queues.Drain(workerID) {
		log.Printf("[orchestrator] worker %s retired with undelivered update: %s",
			workerID, describeUpdate(update))
	}
}

// describeUpdate renders a queued TaskUpdate as a line of context for
// the addressed worker's next turn.
func describeUpdate(u models.TaskUpdate) string {
	switch u.Type {
	case models.UpdateCompleted:
		output := ""
		if u.Result != nil {
			output = ": " + u.Result.Output
		}
		return fmt.Sprintf("Sub-task %s completed%s", u.SubTaskID, output)
	case models.UpdateFailed:
		reason := u.Error
		if reason == "" && u.Result != nil {
			reason = u.Result.Error
		}
		return fmt.Sprintf("Sub-task %s failed: %s", u.SubTaskID, reason)
	case models.UpdateIdle:
		return "Health notice: " + u.IdleReason
	case models.UpdateProgress:
		return "Progress check: " + u.Progress
	case models.UpdateError:
		return "Health error: " + u.Error
	default:
		return fmt.Sprintf("Update (%s): %s", u.Type, u.Error)
	}
}

// forceTerminate is the health monitor's stuck signal: the worker is
// transitioned to error and its task to failed.
func (s *Service) forceTerminate(workerID string) {
	s.mu.Lock()
	sess, ok := s.sessions[workerID]
	s.mu.Unlock()
	if !ok {
		return
	}

	taskID := sess.TaskID()
	s.emit(Event{Type: EventWorkerUnhealthy, WorkerID: workerID, TaskID: taskID,
		Message: "forced termination: no activity past stuck ceiling", Timestamp: time.Now()})
	s.failTask(taskID, fmt.Errorf("worker %s stuck: no activity past ceiling", workerID), workerID)
}
