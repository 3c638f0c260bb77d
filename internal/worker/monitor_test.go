package worker

import (
	"testing"
	"time"

	"github.com/mwhitten/foreman/pkg/models"
)

// monitorFixture wires a session and monitor to a shared simulated clock.
type monitorFixture struct {
	clock   time.Time
	session *Session
	monitor *Monitor
	queues  *Queues
	stuck   chan string
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	f := &monitorFixture{
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		queues: NewQueues(),
		stuck:  make(chan string, 4),
	}
	now := func() time.Time { return f.clock }

	f.session = NewSession("task-1", "plan-1", "/tmp/ws")
	f.session.now = now
	f.session.lastActivityAt = f.clock
	f.session.startedAt = f.clock

	f.monitor = NewMonitor(f.queues, func(id string) { f.stuck <- id })
	f.monitor.now = now
	f.monitor.Track(f.session)
	return f
}

func (f *monitorFixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func TestMonitorIdleFiresOncePerEpisode(t *testing.T) {
	f := newMonitorFixture(t)
	f.session.Start()
	f.session.Idle()

	// 31 seconds of silence while not executing.
	f.advance(31 * time.Second)
	f.monitor.Check()

	updates := f.queues.Drain(f.session.ID())
	if len(updates) != 1 || updates[0].Type != models.UpdateIdle {
		t.Fatalf("updates = %v, want one idle update", updates)
	}

	// Still silent: the rule must not re-fire.
	f.advance(10 * time.Second)
	f.monitor.Check()
	if n := f.queues.Len(f.session.ID()); n != 0 {
		t.Errorf("idle re-fired during the same episode: %d updates", n)
	}

	// Activity re-arms the rule; a fresh silent episode fires again.
	f.session.Start()
	f.monitor.Check()
	f.advance(31 * time.Second)
	f.monitor.Check()

	updates = f.queues.Drain(f.session.ID())
	if len(updates) != 1 || updates[0].Type != models.UpdateIdle {
		t.Errorf("updates after re-arm = %v, want one idle update", updates)
	}
}

func TestMonitorNoIdleWhileExecuting(t *testing.T) {
	f := newMonitorFixture(t)
	f.session.Start()
	f.session.BeginExecution()

	f.advance(31 * time.Second)
	f.monitor.Check()

	for _, u := range f.queues.Drain(f.session.ID()) {
		if u.Type == models.UpdateIdle {
			t.Error("idle update fired while executing")
		}
	}
}

func TestMonitorProgressCheckDue(t *testing.T) {
	f := newMonitorFixture(t)
	f.session.Start()
	f.session.BeginExecution()

	f.advance(5*time.Minute + time.Second)
	f.monitor.Check()

	var progress int
	for _, u := range f.queues.Drain(f.session.ID()) {
		if u.Type == models.UpdateProgress {
			progress++
		}
	}
	if progress != 1 {
		t.Fatalf("progress updates = %d, want 1", progress)
	}

	// Single-fire per turn.
	f.advance(time.Minute)
	f.monitor.Check()
	for _, u := range f.queues.Drain(f.session.ID()) {
		if u.Type == models.UpdateProgress {
			t.Error("progress check re-fired within the same turn")
		}
	}

	// Next turn re-arms the rule.
	f.session.EndExecution()
	f.monitor.Check()
	f.session.BeginExecution()
	f.advance(5*time.Minute + time.Second)
	f.monitor.Check()

	progress = 0
	for _, u := range f.queues.Drain(f.session.ID()) {
		if u.Type == models.UpdateProgress {
			progress++
		}
	}
	if progress != 1 {
		t.Errorf("progress updates after new turn = %d, want 1", progress)
	}
}

func TestMonitorStuckFiresHighPriorityAndSignals(t *testing.T) {
	f := newMonitorFixture(t)
	f.session.Start()
	f.session.BeginExecution()

	f.advance(12*time.Minute + time.Second)
	f.monitor.Check()

	updates := f.queues.Drain(f.session.ID())
	var found bool
	for _, u := range updates {
		if u.Type == models.UpdateError {
			found = true
			if !u.HighPriority {
				t.Error("stuck update should be high priority")
			}
		}
	}
	if !found {
		t.Fatalf("updates = %v, want an error update", updates)
	}

	// onStuck runs on its own goroutine; give it a moment.
	select {
	case id := <-f.stuck:
		if id != f.session.ID() {
			t.Errorf("stuck signal for %s, want %s", id, f.session.ID())
		}
	case <-time.After(time.Second):
		t.Error("no stuck signal received")
	}
}

func TestMonitorIgnoresTerminalSessions(t *testing.T) {
	f := newMonitorFixture(t)
	f.session.Start()
	f.session.Complete()

	f.advance(time.Hour)
	f.monitor.Check()

	if n := f.queues.Len(f.session.ID()); n != 0 {
		t.Errorf("terminal session produced %d updates", n)
	}
}

func TestQueuesFIFOPerWorker(t *testing.T) {
	q := NewQueues()
	q.Push(models.TaskUpdate{Type: models.UpdateIdle, WorkerID: "w1", IdleReason: "a"})
	q.Push(models.TaskUpdate{Type: models.UpdateProgress, WorkerID: "w1", Progress: "b"})
	q.Push(models.TaskUpdate{Type: models.UpdateIdle, WorkerID: "w2"})

	got := q.Drain("w1")
	if len(got) != 2 || got[0].IdleReason != "a" || got[1].Progress != "b" {
		t.Errorf("w1 drain = %v, want FIFO [a b]", got)
	}
	if q.Len("w1") != 0 {
		t.Error("drain should empty the queue")
	}
	if q.Len("w2") != 1 {
		t.Error("other workers' queues must be untouched")
	}

	q.Discard("w2")
	if q.Len("w2") != 0 {
		t.Error("Discard should drop the queue")
	}
}
