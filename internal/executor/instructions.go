package executor

import (
	"fmt"
	"strings"
)

// InstructionOptions control which capabilities the preamble advertises.
type InstructionOptions struct {
	// WorkspacePath is the directory the agent is confined to.
	WorkspacePath string
	// AllowSubTasks advertises the sub-task spawning capability.
	AllowSubTasks bool
	// SubTaskDepthRemaining is how many more levels of sub-tasks this
	// agent may spawn. Only meaningful when AllowSubTasks is true.
	SubTaskDepthRemaining int
	// TargetFiles, when set, names the files the task is scoped to.
	TargetFiles []string
}

// Instructions builds the orchestrator preamble prepended to every task
// prompt. It confines the agent to its workspace, requires committing
// before completion, and defines the completion protocol.
func Instructions(opts InstructionOptions) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are working in an isolated workspace at %s. ", opts.WorkspacePath)
	b.WriteString("Only read and modify files inside this workspace; never touch files outside it.\n\n")

	if len(opts.TargetFiles) > 0 {
		fmt.Fprintf(&b, "This task is scoped to the following files: %s.\n\n",
			strings.Join(opts.TargetFiles, ", "))
	}

	b.WriteString("Before you finish, commit all of your changes with a descriptive commit message. Uncommitted work is discarded.\n\n")

	b.WriteString("When you are done, print exactly one of these markers on its own line:\n")
	fmt.Fprintf(&b, "  %s - the task is fully done\n", MarkerComplete)
	fmt.Fprintf(&b, "  %s - some of the task is done, followed by a short note on what remains\n", MarkerPartial)
	fmt.Fprintf(&b, "  %s - the task could not be done, followed by the reason\n", MarkerFailed)

	if opts.AllowSubTasks && opts.SubTaskDepthRemaining > 0 {
		fmt.Fprintf(&b, "\nYou may delegate independent pieces of work as sub-tasks (up to %d more level(s) of delegation). ",
			opts.SubTaskDepthRemaining)
		b.WriteString("Keep sub-tasks small and self-contained; you are responsible for integrating their results.\n")
	}

	return b.String()
}
