// Package graph provides the task dependency graph used for scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mwhitten/foreman/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownDependency indicates a task references a dependency that does not exist.
var ErrUnknownDependency = errors.New("unknown dependency")

// DependencyGraph is a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
// Tasks are added incrementally; every add re-validates acyclicity so a
// rejected add leaves the graph unchanged.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// AddTask registers a task and its dependency edges.
// Returns ErrUnknownDependency if any referenced dependency is absent, and
// ErrCycleDetected if the new edges would create a cycle. On error the
// graph is left exactly as it was.
func (g *DependencyGraph) AddTask(task *models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[task.ID]; exists {
		return fmt.Errorf("task %s already in graph", task.ID)
	}

	for _, depID := range task.DependsOn {
		if _, exists := g.nodes[depID]; !exists {
			return fmt.Errorf("%w: task %s depends on %s", ErrUnknownDependency, task.ID, depID)
		}
	}

	g.nodes[task.ID] = task
	g.edges[task.ID] = append([]string(nil), task.DependsOn...)

	if g.hasCycleLocked() {
		// Roll back so a rejected add leaves no trace.
		delete(g.nodes, task.ID)
		delete(g.edges, task.ID)
		return ErrCycleDetected
	}

	return nil
}

// hasCycleLocked detects cycles via depth-first search with coloring.
// Caller must hold g.mu.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// GetReady returns the tasks that are ready to deploy: status pending (or
// queued) with every dependency completed. If planID is non-empty the
// result is scoped to that plan. The result order is unspecified; callers
// sort by priority and creation order.
func (g *DependencyGraph) GetReady(planID string) []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for id, task := range g.nodes {
		if planID != "" && task.PlanID != planID {
			continue
		}
		if task.Status != models.TaskStatusPending && task.Status != models.TaskStatusQueued {
			continue
		}

		satisfied := true
		for _, depID := range g.edges[id] {
			if g.completed[depID] {
				continue
			}
			// Status is the source of truth; the completed set is a cache.
			if dep, exists := g.nodes[depID]; !exists || dep.Status != models.TaskStatusCompleted {
				satisfied = false
				break
			}
		}

		if satisfied {
			ready = append(ready, task)
		}
	}
	return ready
}

// MarkComplete records a task as completed, affecting subsequent GetReady calls.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
}

// ClearComplete removes a task from the completed set, used when a
// completed task is reset for retry.
func (g *DependencyGraph) ClearComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.completed, taskID)
}

// Remove deletes a task and severs every edge pointing at it. It returns
// the IDs of tasks that depended on the removed task so the caller can
// decide their fate (foreman marks them blocked with a missing-dependency
// reason).
func (g *DependencyGraph) Remove(taskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var dependents []string
	for id, deps := range g.edges {
		kept := deps[:0]
		severed := false
		for _, depID := range deps {
			if depID == taskID {
				severed = true
				continue
			}
			kept = append(kept, depID)
		}
		if severed {
			g.edges[id] = kept
			dependents = append(dependents, id)
		}
	}

	delete(g.nodes, taskID)
	delete(g.edges, taskID)
	delete(g.completed, taskID)
	return dependents
}

// GetTask returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of tasks the given task depends on.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// GetDependents returns the IDs of tasks that depend on the given task.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// Tasks returns all tasks in the graph, optionally scoped to a plan.
func (g *DependencyGraph) Tasks(planID string) []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.nodes))
	for _, task := range g.nodes {
		if planID != "" && task.PlanID != planID {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// TopologicalSort returns task IDs in an order where all dependencies
// come before the tasks that depend on them.
// Returns ErrCycleDetected if the graph contains a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for id := range g.nodes {
		visit(id)
	}
	return result, nil
}
