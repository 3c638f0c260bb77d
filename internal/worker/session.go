// Package worker implements the per-task session state machine, the
// health monitor that classifies session activity, and the per-worker
// FIFO update queues.
package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwhitten/foreman/pkg/models"
)

// ErrTerminal is returned when a transition is attempted on a session
// that has already completed or errored.
var ErrTerminal = errors.New("worker session is terminal")

// outputThrottle limits how often streamed output refreshes the
// activity timestamp, so chatty agents do not cause event storms.
const outputThrottle = 5 * time.Second

// Session is the state machine for one deployed task. Status tracks the
// instruction cycle (running vs idle); the executing flag independently
// tracks whether an executor turn is in flight, since the agent's
// internal autonomy is opaque to the orchestrator.
type Session struct {
	mu sync.Mutex

	id            string
	taskID        string
	planID        string
	workspacePath string

	status    models.WorkerStatus
	executing bool
	errMsg    string

	lastActivityAt     time.Time
	lastOutputAt       time.Time
	executionStartedAt time.Time
	startedAt          time.Time

	inbox []string

	// now is the clock source, replaceable in tests.
	now func() time.Time
}

// NewSession creates a session in the created state for the given task.
func NewSession(taskID, planID, workspacePath string) *Session {
	now := time.Now
	return &Session{
		id:             "worker-" + uuid.New().String()[:8],
		taskID:         taskID,
		planID:         planID,
		workspacePath:  workspacePath,
		status:         models.WorkerCreated,
		startedAt:      now(),
		lastActivityAt: now(),
		now:            now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// TaskID returns the task this session serves.
func (s *Session) TaskID() string { return s.taskID }

// Start moves the session to running and returns any queued inbound
// messages. Messages are consumed exactly once, on the idle-to-running
// transition. Valid from created, idle, paused, and waiting_approval.
func (s *Session) Start() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case models.WorkerCreated, models.WorkerIdle, models.WorkerPaused, models.WorkerWaitingApproval:
	default:
		return nil, s.transitionErrLocked(models.WorkerRunning)
	}

	s.status = models.WorkerRunning
	s.touchLocked()

	msgs := s.inbox
	s.inbox = nil
	return msgs, nil
}

// BeginExecution marks the start of an executor turn.
func (s *Session) BeginExecution() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executing = true
	s.executionStartedAt = s.now()
	s.touchLocked()
}

// EndExecution marks the end of an executor turn.
func (s *Session) EndExecution() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executing = false
	s.executionStartedAt = time.Time{}
	s.touchLocked()
}

// RecordOutput refreshes the activity timestamps on streamed output.
// Calls within the throttle window of the previous one are dropped.
// Returns true if the output was recorded.
func (s *Session) RecordOutput() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.lastOutputAt.IsZero() && now.Sub(s.lastOutputAt) < outputThrottle {
		return false
	}
	s.lastOutputAt = now
	s.lastActivityAt = now
	return true
}

// Idle moves the session from running to idle, ending the current
// instruction cycle.
func (s *Session) Idle() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.WorkerRunning {
		return s.transitionErrLocked(models.WorkerIdle)
	}
	s.status = models.WorkerIdle
	s.touchLocked()
	return nil
}

// Complete moves the session to its terminal completed state. Valid
// from created, running, and idle; accepting created closes the window
// where a completion races the dispatch goroutine's first Start.
func (s *Session) Complete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case models.WorkerCreated, models.WorkerRunning, models.WorkerIdle:
	default:
		return s.transitionErrLocked(models.WorkerCompleted)
	}
	s.status = models.WorkerCompleted
	s.touchLocked()
	return nil
}

// Error moves the session to its terminal error state with the given
// message. Valid from any non-terminal state.
func (s *Session) Error(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return ErrTerminal
	}
	s.status = models.WorkerError
	s.errMsg = msg
	s.executing = false
	s.touchLocked()
	return nil
}

// Pause moves a running session to paused.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.WorkerRunning {
		return s.transitionErrLocked(models.WorkerPaused)
	}
	s.status = models.WorkerPaused
	s.touchLocked()
	return nil
}

// Interrupt stops a running or paused session back to idle.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case models.WorkerRunning, models.WorkerPaused:
	default:
		return s.transitionErrLocked(models.WorkerIdle)
	}
	s.status = models.WorkerIdle
	s.touchLocked()
	return nil
}

// WaitApproval parks an idle session until a privileged operation is
// signed off. Resuming goes through Start.
func (s *Session) WaitApproval() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.WorkerIdle {
		return s.transitionErrLocked(models.WorkerWaitingApproval)
	}
	s.status = models.WorkerWaitingApproval
	s.touchLocked()
	return nil
}

// Enqueue adds an inbound message for delivery on the next
// idle-to-running transition. Terminal sessions reject messages.
func (s *Session) Enqueue(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return ErrTerminal
	}
	s.inbox = append(s.inbox, msg)
	return nil
}

// Status returns the current session status.
func (s *Session) Status() models.WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns a read-only copy of the session state.
func (s *Session) Snapshot() models.WorkerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.WorkerState{
		ID:                 s.id,
		TaskID:             s.taskID,
		PlanID:             s.planID,
		Status:             s.status,
		WorkspacePath:      s.workspacePath,
		Executing:          s.executing,
		LastActivityAt:     s.lastActivityAt,
		LastOutputAt:       s.lastOutputAt,
		ExecutionStartedAt: s.executionStartedAt,
		Error:              s.errMsg,
		PendingMessages:    len(s.inbox),
		StartedAt:          s.startedAt,
	}
}

// touchLocked refreshes the activity timestamp. Caller holds mu.
func (s *Session) touchLocked() {
	s.lastActivityAt = s.now()
}

// transitionErrLocked builds the rejection error for an invalid
// transition. Caller holds mu.
func (s *Session) transitionErrLocked(to models.WorkerStatus) error {
	if s.status.Terminal() {
		return ErrTerminal
	}
	return fmt.Errorf("invalid worker transition %s -> %s", s.status, to)
}
