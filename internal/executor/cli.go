package executor

import (
	"context"
	"fmt"
	"log"

	osexec "github.com/mwhitten/foreman/internal/exec"
	"github.com/mwhitten/foreman/pkg/models"
)

// CLIExecutor runs a coding agent CLI as a subprocess inside the task
// workspace. This is the default execution path.
type CLIExecutor struct {
	runner osexec.CommandRunner
}

// NewCLIExecutor creates a CLIExecutor using the given command runner.
// If runner is nil a real runner inheriting the process environment is
// used.
func NewCLIExecutor(runner osexec.CommandRunner) *CLIExecutor {
	if runner == nil {
		runner = osexec.NewRunner()
	}
	return &CLIExecutor{runner: runner}
}

// Execute runs the backend CLI to completion in the request workspace.
// The returned Result reflects the agent's reported outcome; a non-nil
// error is returned only for dispatch-level failures such as an unknown
// backend.
func (e *CLIExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	name, args, err := commandFor(req)
	if err != nil {
		return nil, err
	}

	log.Printf("[executor] running %s for task %s in %s", name, req.TaskID, req.WorkspacePath)

	onOutput := func(chunk []byte) {
		if req.OnOutput != nil {
			req.OnOutput(string(chunk))
		}
	}

	output, runErr := e.runner.RunStreaming(ctx, req.WorkspacePath, onOutput, name, args...)
	if ctx.Err() != nil {
		return &Result{
			Status: models.ResultFailed,
			Output: string(output),
			Error:  fmt.Sprintf("execution interrupted: %v", ctx.Err()),
		}, nil
	}

	res := &Result{
		Status: classifyOutput(string(output), runErr),
		Output: string(output),
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}
	return res, nil
}

// commandFor builds the CLI invocation for the requested backend.
func commandFor(req Request) (string, []string, error) {
	prompt := req.Prompt
	if req.AdditionalInstructions != "" {
		prompt = req.AdditionalInstructions + "\n\n" + prompt
	}

	switch req.Agent.Backend {
	case "claude", "":
		args := []string{
			"--print",
			"--output-format", "text",
			"--allowedTools", "Read,Write,Edit,Bash,Glob,Grep,WebFetch",
		}
		if req.Model != "" {
			args = append(args, "--model", req.Model)
		}
		args = append(args, "-p", prompt)
		return "claude", args, nil
	case "codex":
		args := []string{"exec", "--full-auto"}
		if req.Model != "" {
			args = append(args, "--model", req.Model)
		}
		args = append(args, prompt)
		return "codex", args, nil
	default:
		return "", nil, fmt.Errorf("unknown CLI backend %q", req.Agent.Backend)
	}
}

// Verify CLIExecutor implements Executor at compile time.
var _ Executor = (*CLIExecutor)(nil)
