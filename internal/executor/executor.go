// Package executor defines the capability that actually runs a backend
// coding agent for a task, plus the built-in CLI and API implementations.
package executor

import (
	"context"
	"strings"

	"github.com/mwhitten/foreman/internal/agents"
	"github.com/mwhitten/foreman/pkg/models"
)

// Request carries everything an executor needs to run one task turn.
type Request struct {
	// TaskID is the task being executed.
	TaskID string
	// Prompt is the task description handed to the agent.
	Prompt string
	// WorkspacePath is the isolated workspace the agent must stay inside.
	WorkspacePath string
	// Agent describes the agent to run.
	Agent agents.Descriptor
	// Model is the optional model override from backend selection.
	Model string
	// AdditionalInstructions is the orchestrator preamble prepended to the
	// prompt (workspace restriction, commit requirement, completion
	// protocol, sub-task capability).
	AdditionalInstructions string
	// OnOutput, when non-nil, receives incremental output chunks. Health
	// monitoring uses these as activity signals.
	OnOutput func(chunk string)
}

// Result is the terminal outcome of one execution turn.
type Result struct {
	// Status is success, partial, or failed.
	Status models.ResultStatus
	// Output is the full textual output of the agent.
	Output string
	// Error holds failure details when Status is failed.
	Error string
}

// Executor runs a backend coding agent to completion for one turn.
// Implementations must honor ctx cancellation as a best-effort stop
// signal and return promptly when it fires.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Completion markers agents are instructed to print; see Instructions.
const (
	MarkerComplete = "TASK COMPLETE"
	MarkerPartial  = "TASK PARTIAL"
	MarkerFailed   = "TASK FAILED"
)

// classifyOutput maps marker usage in agent output to a result status.
// Absent any marker a clean exit counts as success and a failed exit as
// failed; the markers let agents report partial completion explicitly.
func classifyOutput(output string, runErr error) models.ResultStatus {
	switch {
	case strings.Contains(output, MarkerFailed):
		return models.ResultFailed
	case strings.Contains(output, MarkerPartial):
		return models.ResultPartial
	case strings.Contains(output, MarkerComplete):
		return models.ResultSuccess
	case runErr != nil:
		return models.ResultFailed
	default:
		return models.ResultSuccess
	}
}
