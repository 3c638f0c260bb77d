package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mwhitten/foreman/internal/agents"
	"github.com/mwhitten/foreman/pkg/models"
)

func TestClassifyOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		runErr error
		want   models.ResultStatus
	}{
		{"complete marker", "all done\nTASK COMPLETE\n", nil, models.ResultSuccess},
		{"partial marker", "TASK PARTIAL: tests remain", nil, models.ResultPartial},
		{"failed marker", "TASK FAILED: cannot find entrypoint", nil, models.ResultFailed},
		{"failed marker wins over complete", "TASK COMPLETE\nTASK FAILED: rollback", nil, models.ResultFailed},
		{"no marker clean exit", "did some work", nil, models.ResultSuccess},
		{"no marker failed exit", "crash", errors.New("exit status 1"), models.ResultFailed},
		{"partial marker with failed exit", "TASK PARTIAL: half", errors.New("exit status 1"), models.ResultPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyOutput(tt.output, tt.runErr); got != tt.want {
				t.Errorf("classifyOutput() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstructions(t *testing.T) {
	text := Instructions(InstructionOptions{
		WorkspacePath:         "/tmp/ws/task-1",
		AllowSubTasks:         true,
		SubTaskDepthRemaining: 2,
		TargetFiles:           []string{"a.go", "b.go"},
	})

	for _, want := range []string{
		"/tmp/ws/task-1",
		"commit all of your changes",
		MarkerComplete,
		MarkerPartial,
		MarkerFailed,
		"a.go, b.go",
		"sub-tasks",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("instructions missing %q", want)
		}
	}
}

func TestInstructionsNoSubTasksAtDepthLimit(t *testing.T) {
	text := Instructions(InstructionOptions{
		WorkspacePath:         "/tmp/ws",
		AllowSubTasks:         true,
		SubTaskDepthRemaining: 0,
	})
	if strings.Contains(text, "sub-task") {
		t.Error("instructions should not advertise sub-tasks when no depth remains")
	}
}

func TestCommandFor(t *testing.T) {
	req := Request{
		Prompt:                 "fix the bug",
		AdditionalInstructions: "stay in the workspace",
		Agent:                  agents.Descriptor{ID: "general", Backend: "claude"},
		Model:                  "claude-sonnet-4-5",
	}

	name, args, err := commandFor(req)
	if err != nil {
		t.Fatalf("commandFor() error = %v", err)
	}
	if name != "claude" {
		t.Errorf("name = %q, want claude", name)
	}

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--model claude-sonnet-4-5") {
		t.Errorf("args missing model flag: %v", args)
	}
	// Preamble must precede the prompt.
	last := args[len(args)-1]
	if !strings.HasPrefix(last, "stay in the workspace") || !strings.Contains(last, "fix the bug") {
		t.Errorf("prompt not assembled with preamble: %q", last)
	}
}

func TestCommandForUnknownBackend(t *testing.T) {
	_, _, err := commandFor(Request{Agent: agents.Descriptor{Backend: "gemini"}})
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

// fakeRunner records invocations and returns canned output.
type fakeRunner struct {
	output  []byte
	err     error
	name    string
	args    []string
	workDir string
}

func (f *fakeRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	f.workDir, f.name, f.args = workDir, name, args
	return f.output, f.err
}

func (f *fakeRunner) RunStreaming(ctx context.Context, workDir string, onOutput func([]byte), name string, args ...string) ([]byte, error) {
	f.workDir, f.name, f.args = workDir, name, args
	if onOutput != nil && len(f.output) > 0 {
		onOutput(f.output)
	}
	return f.output, f.err
}

func TestCLIExecutorSuccess(t *testing.T) {
	runner := &fakeRunner{output: []byte("working...\nTASK COMPLETE\n")}
	exec := NewCLIExecutor(runner)

	var streamed string
	res, err := exec.Execute(context.Background(), Request{
		TaskID:        "t1",
		Prompt:        "do the thing",
		WorkspacePath: "/tmp/ws",
		Agent:         agents.Descriptor{Backend: "claude"},
		OnOutput:      func(chunk string) { streamed += chunk },
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != models.ResultSuccess {
		t.Errorf("status = %v, want success", res.Status)
	}
	if runner.workDir != "/tmp/ws" {
		t.Errorf("workDir = %q, want /tmp/ws", runner.workDir)
	}
	if !strings.Contains(streamed, "TASK COMPLETE") {
		t.Error("output chunks were not forwarded")
	}
}

func TestCLIExecutorFailedExit(t *testing.T) {
	runner := &fakeRunner{output: []byte("boom"), err: errors.New("exit status 1")}
	exec := NewCLIExecutor(runner)

	res, err := exec.Execute(context.Background(), Request{
		TaskID: "t1",
		Agent:  agents.Descriptor{Backend: "claude"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != models.ResultFailed {
		t.Errorf("status = %v, want failed", res.Status)
	}
	if res.Error == "" {
		t.Error("expected error detail on failed result")
	}
}

func TestCLIExecutorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{output: []byte("partial output"), err: errors.New("signal: killed")}
	exec := NewCLIExecutor(runner)

	res, err := exec.Execute(ctx, Request{
		TaskID: "t1",
		Agent:  agents.Descriptor{Backend: "claude"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != models.ResultFailed {
		t.Errorf("status = %v, want failed", res.Status)
	}
	if !strings.Contains(res.Error, "interrupted") {
		t.Errorf("error = %q, want interruption detail", res.Error)
	}
}
