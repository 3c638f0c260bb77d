package worker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mwhitten/foreman/pkg/models"
)

// Health thresholds. The monitor classifies, it never mutates task or
// plan state; the orchestrator decides what to do with the updates.
const (
	// DefaultTickInterval is how often sessions are inspected.
	DefaultTickInterval = 3 * time.Second
	// DefaultIdleAfter is the silence threshold for a non-executing session.
	DefaultIdleAfter = 30 * time.Second
	// DefaultProgressAfter is how long an execution turn may run before a
	// progress check is due.
	DefaultProgressAfter = 5 * time.Minute
	// DefaultStuckAfter is the no-activity ceiling after which a session
	// is considered unhealthy.
	DefaultStuckAfter = 12 * time.Minute
)

// Monitor observes tracked sessions and queues TaskUpdates when they go
// idle, run long enough to warrant a progress check, or go silent past
// the stuck ceiling. Each rule fires at most once per violation episode
// and re-arms when activity resumes.
type Monitor struct {
	mu sync.Mutex

	sessions map[string]*Session

	// Fired-episode tracking, keyed by session id.
	idleFired     map[string]bool
	progressFired map[string]bool
	stuckFired    map[string]bool

	queues *Queues

	// onStuck, when set, signals the orchestrator to consider forced
	// termination of an unhealthy worker.
	onStuck func(workerID string)

	tick          time.Duration
	idleAfter     time.Duration
	progressAfter time.Duration
	stuckAfter    time.Duration

	// now is the clock source, replaceable in tests.
	now func() time.Time

	stop chan struct{}
	done chan struct{}
}

// Thresholds overrides the monitor's health timings. Zero fields keep
// their defaults.
type Thresholds struct {
	// TickInterval is how often sessions are inspected.
	TickInterval time.Duration
	// IdleAfter is the silence threshold for a non-executing session.
	IdleAfter time.Duration
	// ProgressAfter is how long an execution turn runs before a
	// progress check is queued.
	ProgressAfter time.Duration
	// StuckAfter is the silence ceiling that triggers forced
	// termination.
	StuckAfter time.Duration
}

// NewMonitor creates a monitor feeding the given queues with default
// thresholds.
func NewMonitor(queues *Queues, onStuck func(workerID string)) *Monitor {
	return &Monitor{
		sessions:      make(map[string]*Session),
		idleFired:     make(map[string]bool),
		progressFired: make(map[string]bool),
		stuckFired:    make(map[string]bool),
		queues:        queues,
		onStuck:       onStuck,
		tick:          DefaultTickInterval,
		idleAfter:     DefaultIdleAfter,
		progressAfter: DefaultProgressAfter,
		stuckAfter:    DefaultStuckAfter,
		now:           time.Now,
	}
}

// SetThresholds applies non-zero overrides. Call before Start.
func (m *Monitor) SetThresholds(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.TickInterval > 0 {
		m.tick = t.TickInterval
	}
	if t.IdleAfter > 0 {
		m.idleAfter = t.IdleAfter
	}
	if t.ProgressAfter > 0 {
		m.progressAfter = t.ProgressAfter
	}
	if t.StuckAfter > 0 {
		m.stuckAfter = t.StuckAfter
	}
}

// Track adds a session to the watch set.
func (m *Monitor) Track(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
}

// Untrack removes a session and its episode state.
func (m *Monitor) Untrack(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, workerID)
	delete(m.idleFired, workerID)
	delete(m.progressFired, workerID)
	delete(m.stuckFired, workerID)
}

// Start launches the periodic inspection loop. Stop terminates it.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop, done, tick := m.stop, m.done, m.tick
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Check()
			case <-stop:
				return
			}
		}
	}()
}

// Stop terminates the inspection loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Check runs one inspection pass over all tracked sessions. Exposed so
// tests can drive the monitor with a simulated clock.
func (m *Monitor) Check() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	now := m.now()
	for _, s := range sessions {
		m.inspect(now, s)
	}
}

func (m *Monitor) inspect(now time.Time, s *Session) {
	snap := s.Snapshot()
	if snap.Status.Terminal() {
		return
	}

	silence := now.Sub(snap.LastActivityAt)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Activity re-arms the idle and stuck rules.
	if silence <= m.idleAfter {
		m.idleFired[snap.ID] = false
		m.stuckFired[snap.ID] = false
	}

	// Stuck: no activity at all, executing or not.
	if silence > m.stuckAfter && !m.stuckFired[snap.ID] {
		m.stuckFired[snap.ID] = true
		log.Printf("[health] worker %s unhealthy: no activity for %s", snap.ID, silence.Round(time.Second))
		m.queues.Push(models.TaskUpdate{
			Type:         models.UpdateError,
			WorkerID:     snap.ID,
			Error:        fmt.Sprintf("no activity for %s", silence.Round(time.Second)),
			HighPriority: true,
			Timestamp:    now,
		})
		if m.onStuck != nil {
			go m.onStuck(snap.ID)
		}
		return
	}

	// Idle: not executing, quiet past the threshold.
	if !snap.Executing && silence > m.idleAfter && !m.idleFired[snap.ID] {
		m.idleFired[snap.ID] = true
		m.queues.Push(models.TaskUpdate{
			Type:       models.UpdateIdle,
			WorkerID:   snap.ID,
			IdleReason: fmt.Sprintf("no output for %s", silence.Round(time.Second)),
			Timestamp:  now,
		})
	}

	// Progress check: executing past the turn threshold.
	if snap.Executing && !snap.ExecutionStartedAt.IsZero() {
		running := now.Sub(snap.ExecutionStartedAt)
		if running > m.progressAfter && !m.progressFired[snap.ID] {
			m.progressFired[snap.ID] = true
			m.queues.Push(models.TaskUpdate{
				Type:      models.UpdateProgress,
				WorkerID:  snap.ID,
				Progress:  fmt.Sprintf("executing for %s, progress check due", running.Round(time.Second)),
				Timestamp: now,
			})
		}
	} else {
		// Turn ended, re-arm the progress rule.
		m.progressFired[snap.ID] = false
	}
}
