// Package safety provides pure policy limits for recursive spawning and
// concurrency. Limits carry no state beyond configuration and are
// dependency-injected wherever spawning decisions are made.
package safety

import "fmt"

// ErrDepthLimitExceeded indicates a sub-task spawn would exceed the
// maximum recursion depth for its spawn context.
var ErrDepthLimitExceeded = fmt.Errorf("sub-task depth limit exceeded")

// Default depth limits per spawn context.
const (
	// DefaultOrchestratorDepth is the maximum depth for orchestrator-initiated chains.
	DefaultOrchestratorDepth = 2
	// DefaultAgentDepth is the maximum depth for agent-initiated chains.
	DefaultAgentDepth = 1
	// DefaultMaxConcurrentWorkers caps simultaneously live worker sessions.
	DefaultMaxConcurrentWorkers = 8
)

// Limits holds the safety policy configuration.
type Limits struct {
	// OrchestratorMaxDepth is the recursion ceiling for orchestrator spawns.
	OrchestratorMaxDepth int
	// AgentMaxDepth is the recursion ceiling for agent spawns.
	AgentMaxDepth int
	// MaxConcurrentWorkers caps live worker sessions; 0 means unlimited.
	MaxConcurrentWorkers int
}

// DefaultLimits returns the built-in safety policy.
func DefaultLimits() Limits {
	return Limits{
		OrchestratorMaxDepth: DefaultOrchestratorDepth,
		AgentMaxDepth:        DefaultAgentDepth,
		MaxConcurrentWorkers: DefaultMaxConcurrentWorkers,
	}
}

// SpawnContext mirrors models.SpawnContext without importing it, keeping
// this package dependency-free. Callers pass the string value through.
type SpawnContext string

const (
	SpawnOrchestrator SpawnContext = "orchestrator"
	SpawnAgent        SpawnContext = "agent"
)

// MaxDepth returns the recursion ceiling for the given spawn context.
// Unknown contexts get the stricter agent limit.
func (l Limits) MaxDepth(ctx SpawnContext) int {
	switch ctx {
	case SpawnOrchestrator:
		return l.OrchestratorMaxDepth
	default:
		return l.AgentMaxDepth
	}
}

// CheckDepth validates that a spawn at currentDepth is allowed for the
// given context. The depth is always threaded explicitly through the
// spawn call chain, never read from shared state.
func (l Limits) CheckDepth(ctx SpawnContext, currentDepth int) error {
	if currentDepth >= l.MaxDepth(ctx) {
		return fmt.Errorf("%w: depth %d at limit %d for %s context",
			ErrDepthLimitExceeded, currentDepth, l.MaxDepth(ctx), ctx)
	}
	return nil
}
