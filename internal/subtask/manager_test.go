package subtask

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mwhitten/foreman/internal/safety"
	"github.com/mwhitten/foreman/internal/worker"
	"github.com/mwhitten/foreman/pkg/models"
)

// fakeRunner returns canned results per prompt, optionally blocking
// until released.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]*models.SubTaskResult
	err     error
	block   chan struct{}
	ran     []string
}

func (f *fakeRunner) RunSubTask(ctx context.Context, st *models.SubTask) (*models.SubTaskResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.ran = append(f.ran, st.ID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[st.Prompt]; ok {
		return r, nil
	}
	return &models.SubTaskResult{Status: models.ResultSuccess, Output: "done"}, nil
}

func newManager(runner Runner) (*Manager, *worker.Queues) {
	queues := worker.NewQueues()
	return NewManager(safety.DefaultLimits(), runner, queues), queues
}

func TestCreateDepthMatrix(t *testing.T) {
	m, _ := newManager(&fakeRunner{})

	tests := []struct {
		name    string
		context models.SpawnContext
		depth   int
		wantErr bool
	}{
		{"orchestrator at 0", models.SpawnOrchestrator, 0, false},
		{"orchestrator at 1", models.SpawnOrchestrator, 1, false},
		{"orchestrator at 2", models.SpawnOrchestrator, 2, true},
		{"agent at 0", models.SpawnAgent, 0, false},
		{"agent at 1", models.SpawnAgent, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := m.Create(SpawnRequest{
				ParentWorkerID: "w1",
				AgentType:      "general",
				Prompt:         "p",
				Depth:          tt.depth,
				Context:        tt.context,
			})
			if tt.wantErr {
				if !errors.Is(err, safety.ErrDepthLimitExceeded) {
					t.Errorf("Create() error = %v, want ErrDepthLimitExceeded", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if st.Depth != tt.depth+1 {
				t.Errorf("child depth = %d, want %d", st.Depth, tt.depth+1)
			}
			if st.Status != models.SubTaskPending {
				t.Errorf("status = %v, want pending", st.Status)
			}
		})
	}
}

func TestExecuteEnqueuesParentUpdate(t *testing.T) {
	runner := &fakeRunner{}
	m, queues := newManager(runner)

	st, err := m.Create(SpawnRequest{
		ParentWorkerID: "w1",
		AgentType:      "general",
		Prompt:         "build it",
		Context:        models.SpawnAgent,
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := m.Execute(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != models.ResultSuccess {
		t.Errorf("result status = %v, want success", result.Status)
	}

	got, _ := m.Get(st.ID)
	if got.Status != models.SubTaskCompleted {
		t.Errorf("sub-task status = %v, want completed", got.Status)
	}

	updates := queues.Drain("w1")
	if len(updates) != 1 {
		t.Fatalf("parent updates = %d, want 1", len(updates))
	}
	if updates[0].Type != models.UpdateCompleted || updates[0].SubTaskID != st.ID {
		t.Errorf("update = %+v, want completed for %s", updates[0], st.ID)
	}
}

func TestExecuteRunnerErrorFailsSubTask(t *testing.T) {
	runner := &fakeRunner{err: errors.New("dispatch failed")}
	m, queues := newManager(runner)

	st, _ := m.Create(SpawnRequest{ParentWorkerID: "w1", Prompt: "p", Context: models.SpawnAgent})

	result, err := m.Execute(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != models.ResultFailed {
		t.Errorf("result status = %v, want failed", result.Status)
	}

	got, _ := m.Get(st.ID)
	if got.Status != models.SubTaskFailed {
		t.Errorf("sub-task status = %v, want failed", got.Status)
	}

	updates := queues.Drain("w1")
	if len(updates) != 1 || updates[0].Type != models.UpdateFailed {
		t.Errorf("updates = %v, want one failed update", updates)
	}
}

func TestExecuteRejectsNonPending(t *testing.T) {
	m, _ := newManager(&fakeRunner{})
	st, _ := m.Create(SpawnRequest{ParentWorkerID: "w1", Prompt: "p", Context: models.SpawnAgent})

	if _, err := m.Execute(context.Background(), st.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Execute(context.Background(), st.ID); err == nil {
		t.Error("second Execute() should fail")
	}
	if _, err := m.Execute(context.Background(), "missing"); err == nil {
		t.Error("Execute() on unknown id should fail")
	}
}

func TestAwaitReturnsPartialResultsAtDeadline(t *testing.T) {
	fast := &fakeRunner{}
	m, _ := newManager(fast)

	done, _ := m.Create(SpawnRequest{ParentWorkerID: "w1", Prompt: "fast", Context: models.SpawnAgent})
	slow, _ := m.Create(SpawnRequest{ParentWorkerID: "w1", Prompt: "slow", Context: models.SpawnAgent})

	if _, err := m.Execute(context.Background(), done.ID); err != nil {
		t.Fatal(err)
	}
	// slow never executes; Await must come back with the fast result only.

	results := m.Await(context.Background(), []string{done.ID, slow.ID}, 50*time.Millisecond)
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1 partial", len(results))
	}
	if _, ok := results[done.ID]; !ok {
		t.Error("completed sub-task missing from partial results")
	}
}

func TestAwaitAllComplete(t *testing.T) {
	m, _ := newManager(&fakeRunner{})

	a, _ := m.Create(SpawnRequest{ParentWorkerID: "w1", Prompt: "a", Context: models.SpawnAgent})
	b, _ := m.Create(SpawnRequest{ParentWorkerID: "w1", Prompt: "b", Context: models.SpawnAgent})

	var wg sync.WaitGroup
	for _, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.Execute(context.Background(), id)
		}(id)
	}

	results := m.Await(context.Background(), []string{a.ID, b.ID}, 5*time.Second)
	wg.Wait()

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
}

func TestCancelNotifiesParentAndDiscardsLateResult(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	m, queues := newManager(runner)

	st, _ := m.Create(SpawnRequest{ParentWorkerID: "w1", Prompt: "p", Context: models.SpawnAgent})

	execDone := make(chan struct{})
	go func() {
		defer close(execDone)
		m.Execute(context.Background(), st.ID)
	}()

	// Let Execute reach the runner, then cancel.
	time.Sleep(10 * time.Millisecond)
	if err := m.Cancel(st.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := m.Get(st.ID)
	if got.Status != models.SubTaskCancelled {
		t.Fatalf("status = %v, want cancelled", got.Status)
	}

	// Release the runner; its late result must not overwrite cancelled.
	close(runner.block)
	<-execDone

	got, _ = m.Get(st.ID)
	if got.Status != models.SubTaskCancelled {
		t.Errorf("late result overwrote status: %v", got.Status)
	}

	updates := queues.Drain("w1")
	if len(updates) != 1 || updates[0].Error != "sub-task cancelled" {
		t.Errorf("updates = %v, want single cancellation notice", updates)
	}
}
