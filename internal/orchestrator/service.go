package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mwhitten/foreman/internal/agents"
	"github.com/mwhitten/foreman/internal/backend"
	"github.com/mwhitten/foreman/internal/executor"
	"github.com/mwhitten/foreman/internal/graph"
	"github.com/mwhitten/foreman/internal/safety"
	"github.com/mwhitten/foreman/internal/state"
	"github.com/mwhitten/foreman/internal/subtask"
	"github.com/mwhitten/foreman/internal/worker"
	"github.com/mwhitten/foreman/internal/workspace"
	"github.com/mwhitten/foreman/pkg/models"
)

// Options configures a Service.
type Options struct {
	// Provisioner creates isolated workspaces for deployed tasks.
	Provisioner workspace.Provisioner
	// Executor runs agent turns. Required.
	Executor executor.Executor
	// Selector resolves the backend for each deployment. Optional.
	Selector *backend.Selector
	// Agents validates and resolves agent identifiers. Optional.
	Agents *agents.Discovery
	// Store persists state; nil disables persistence.
	Store state.Store
	// Limits is the safety policy. Zero value gets defaults.
	Limits safety.Limits
	// Health overrides the worker health monitor thresholds.
	Health worker.Thresholds
	// ManualDeploy disables automatic deployment of newly ready tasks.
	ManualDeploy bool
	// EventBuffer sizes the event channel. Defaults to 100.
	EventBuffer int
}

// Service is the orchestration core. It owns plans, tasks, and worker
// sessions, and serializes every scheduling decision through one mutex.
// Executor calls never run under the lock.
type Service struct {
	mu sync.Mutex

	plans map[string]*models.Plan
	tasks map[string]*models.Task
	graph *graph.DependencyGraph

	// sessions maps worker id to its live session; taskWorker maps task
	// id to the worker currently serving it.
	sessions   map[string]*worker.Session
	taskWorker map[string]string
	cancels    map[string]context.CancelFunc

	// claiming marks tasks between the deploy decision and the session
	// registration, while the lock is released for provisioning.
	claiming map[string]bool

	seq int64

	provisioner workspace.Provisioner
	exec        executor.Executor
	selector    *backend.Selector
	agents      *agents.Discovery
	store       state.Store
	limits      safety.Limits

	queues   *worker.Queues
	monitor  *worker.Monitor
	subtasks *subtask.Manager
	emitter  *EventEmitter

	manualDeploy bool
}

// NewService creates an orchestrator service.
func NewService(opts Options) *Service {
	limits := opts.Limits
	if limits == (safety.Limits{}) {
		limits = safety.DefaultLimits()
	}
	buffer := opts.EventBuffer
	if buffer == 0 {
		buffer = 100
	}

	s := &Service{
		plans:        make(map[string]*models.Plan),
		tasks:        make(map[string]*models.Task),
		graph:        graph.New(),
		sessions:     make(map[string]*worker.Session),
		taskWorker:   make(map[string]string),
		cancels:      make(map[string]context.CancelFunc),
		claiming:     make(map[string]bool),
		provisioner:  opts.Provisioner,
		exec:         opts.Executor,
		selector:     opts.Selector,
		agents:       opts.Agents,
		store:        opts.Store,
		limits:       limits,
		queues:       worker.NewQueues(),
		emitter:      NewEventEmitter(buffer),
		manualDeploy: opts.ManualDeploy,
	}
	s.monitor = worker.NewMonitor(s.queues, s.forceTerminate)
	s.monitor.SetThresholds(opts.Health)
	s.subtasks = subtask.NewManager(limits, s, s.queues)
	return s
}

// Start launches the health monitor loop.
func (s *Service) Start() {
	s.monitor.Start()
}

// Stop terminates the health monitor loop and cancels all live workers.
func (s *Service) Stop() {
	s.monitor.Stop()

	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.cancels))
	for _, cancel := range s.cancels {
		cancels = append(cancels, cancel)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Events returns the orchestrator's event stream.
func (s *Service) Events() <-chan Event {
	return s.emitter.Events()
}

// Monitor exposes the health monitor, mainly for tests driving it with
// a simulated clock.
func (s *Service) Monitor() *worker.Monitor {
	return s.monitor
}

// SubTasks exposes the sub-task manager.
func (s *Service) SubTasks() *subtask.Manager {
	return s.subtasks
}

// Plans returns a snapshot of all plans, newest last.
func (s *Service) Plans() []models.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans := make([]models.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, *p)
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].CreatedAt.Before(plans[j].CreatedAt)
	})
	return plans
}

// GetPlan returns a snapshot of one plan.
func (s *Service) GetPlan(planID string) (models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[planID]
	if !ok {
		return models.Plan{}, ErrPlanNotFound
	}
	return *p, nil
}

// Tasks returns a snapshot of tasks, optionally scoped to a plan, in
// creation order.
func (s *Service) Tasks(planID string) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if planID != "" && t.PlanID != planID {
			continue
		}
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Seq < tasks[j].Seq })
	return tasks
}

// GetTask returns a snapshot of one task.
func (s *Service) GetTask(taskID string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	return *t, nil
}

// WorkerStates returns read-only snapshots of all live worker sessions.
func (s *Service) WorkerStates() []models.WorkerState {
	s.mu.Lock()
	sessions := make([]*worker.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	states := make([]models.WorkerState, 0, len(sessions))
	for _, sess := range sessions {
		states = append(states, sess.Snapshot())
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.Before(states[j].StartedAt)
	})
	return states
}

// SendMessageToWorker enqueues an inbound message the worker consumes
// on its next idle-to-running transition.
func (s *Service) SendMessageToWorker(workerID, message string) error {
	s.mu.Lock()
	sess, ok := s.sessions[workerID]
	s.mu.Unlock()

	if !ok {
		return ErrNoActiveWorker
	}
	if err := sess.Enqueue(message); err != nil {
		return ErrNoActiveWorker
	}
	return nil
}

// RequestApproval parks an idle worker until a sign-off arrives.
func (s *Service) RequestApproval(workerID, reason string) error {
	s.mu.Lock()
	sess, ok := s.sessions[workerID]
	s.mu.Unlock()

	if !ok {
		return ErrNoActiveWorker
	}
	if err := sess.WaitApproval(); err != nil {
		return err
	}
	s.persistWorker(sess.Snapshot())
	s.emit(Event{Type: EventWorkerNeedsApproval, WorkerID: workerID,
		TaskID: sess.TaskID(), Message: reason})
	return nil
}

// ApproveWorker releases a worker waiting for approval by dispatching
// its next execution turn, delivering any queued messages.
func (s *Service) ApproveWorker(workerID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[workerID]
	if !ok {
		s.mu.Unlock()
		return ErrNoActiveWorker
	}
	task, ok := s.tasks[sess.TaskID()]
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	if sess.Status() != models.WorkerWaitingApproval {
		s.mu.Unlock()
		return fmt.Errorf("worker %s is %s, not waiting for approval", workerID, sess.Status())
	}

	// The previous turn's context is spent; replace it for the new turn.
	if cancel, ok := s.cancels[workerID]; ok {
		cancel()
	}
	execCtx, cancel := context.WithCancel(context.Background())
	s.cancels[workerID] = cancel
	taskSnapshot := *task
	s.mu.Unlock()

	go s.execute(execCtx, sess, taskSnapshot)
	return nil
}

// DrainWorkerUpdates consumes all queued TaskUpdates for a worker in
// FIFO order.
func (s *Service) DrainWorkerUpdates(workerID string) []models.TaskUpdate {
	return s.queues.Drain(workerID)
}

// emit publishes an event and mirrors it into the audit trail.
func (s *Service) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.emitter.Emit(ev)
	s.audit(ev)
}

// audit mirrors an event into the audit store, best-effort.
func (s *Service) audit(ev Event) {
	if s.store == nil {
		return
	}

	category := "task"
	target := ev.TaskID
	switch ev.Type {
	case EventPlanStarted, EventPlanPaused, EventPlanCompleted, EventPlanFailed:
		category = "plan"
		target = ev.PlanID
	case EventWorkerIdle, EventWorkerNeedsApproval, EventWorkerUnhealthy:
		category = "worker"
		target = ev.WorkerID
	case EventSubTaskSpawned, EventSubTaskCompleted:
		category = "subtask"
		target = ev.SubTaskID
	}

	severity := state.SeverityInfo
	switch ev.Type {
	case EventTaskFailed, EventPlanFailed:
		severity = state.SeverityError
	case EventTaskBlocked, EventWorkerUnhealthy:
		severity = state.SeverityWarning
	}

	message := ev.Message
	if message == "" && ev.Err != nil {
		message = ev.Err.Error()
	}

	if err := s.store.RecordAudit(state.AuditEvent{
		Type:      string(ev.Type),
		Category:  category,
		Severity:  severity,
		Actor:     "orchestrator",
		Target:    target,
		Message:   message,
		CreatedAt: ev.Timestamp,
	}); err != nil {
		log.Printf("[orchestrator] audit write failed: %v", err)
	}
}

// persistPlan saves a plan snapshot, best-effort.
func (s *Service) persistPlan(p *models.Plan, isNew bool) {
	if s.store == nil {
		return
	}
	var err error
	if isNew {
		err = s.store.CreatePlan(p)
	} else {
		err = s.store.UpdatePlan(p)
	}
	if err != nil {
		log.Printf("[orchestrator] persist plan %s failed: %v", p.ID, err)
	}
}

// persistTask saves a task snapshot, best-effort.
func (s *Service) persistTask(t *models.Task, isNew bool) {
	if s.store == nil {
		return
	}
	var err error
	if isNew {
		err = s.store.CreateTask(t)
	} else {
		err = s.store.UpdateTask(t)
	}
	if err != nil {
		log.Printf("[orchestrator] persist task %s failed: %v", t.ID, err)
	}
}

// persistWorker saves a worker snapshot, best-effort.
func (s *Service) persistWorker(w models.WorkerState) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveWorker(&w); err != nil {
		log.Printf("[orchestrator] persist worker %s failed: %v", w.ID, err)
	}
}
