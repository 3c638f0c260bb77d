// Package exec provides an interface for command execution.
package exec

import (
	"context"
	"os"
	"os/exec"
)

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// RunStreaming executes a command, invoking onOutput for each chunk of
	// combined output as it arrives. The full output is also returned.
	// onOutput may be nil.
	RunStreaming(ctx context.Context, workDir string, onOutput func([]byte), name string, args ...string) (output []byte, err error)
}

// Runner implements CommandRunner using os/exec.
type Runner struct {
	// Env, when non-nil, replaces the inherited process environment.
	Env []string
}

// NewRunner creates a new Runner inheriting the process environment.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes a command and returns combined stdout/stderr output.
func (r *Runner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	if r.Env != nil {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	return cmd.CombinedOutput()
}

// RunStreaming executes a command, forwarding output chunks to onOutput as
// they arrive. Cancellation of ctx kills the process.
func (r *Runner) RunStreaming(ctx context.Context, workDir string, onOutput func([]byte), name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	if r.Env != nil {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	sink := &streamSink{onOutput: onOutput}
	cmd.Stdout = sink
	cmd.Stderr = sink

	err := cmd.Run()
	return sink.buf, err
}

// streamSink accumulates output while forwarding chunks to a callback.
type streamSink struct {
	buf      []byte
	onOutput func([]byte)
}

func (s *streamSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	if s.onOutput != nil {
		s.onOutput(p)
	}
	return len(p), nil
}

// Verify Runner implements CommandRunner at compile time.
var _ CommandRunner = (*Runner)(nil)
