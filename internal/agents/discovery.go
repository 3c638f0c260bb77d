// Package agents resolves agent identifiers to descriptors. Agents come
// from a built-in catalog plus repo-defined manifests, merged behind a
// refreshable cache.
package agents

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Source identifies where an agent definition came from.
type Source string

const (
	// SourceBuiltin marks agents shipped with foreman.
	SourceBuiltin Source = "builtin"
	// SourceRepo marks agents defined in the repository manifest.
	SourceRepo Source = "repo"
)

// Descriptor describes an available agent.
type Descriptor struct {
	// ID is the identifier tasks reference.
	ID string `yaml:"id"`
	// Name is the human-readable name.
	Name string `yaml:"name"`
	// Description explains what the agent is good at.
	Description string `yaml:"description"`
	// Backend is the execution backend the agent runs on.
	Backend string `yaml:"backend"`
	// Tools lists the tool names the agent is allowed to use.
	Tools []string `yaml:"tools"`
	// Source is builtin or repo.
	Source Source `yaml:"-"`
}

// ManifestPath is the repo-relative path of the agent manifest.
const ManifestPath = ".foreman/agents.yaml"

// manifest is the on-disk shape of .foreman/agents.yaml.
type manifest struct {
	Agents []Descriptor `yaml:"agents"`
}

// builtinCatalog lists the agents foreman always knows about.
var builtinCatalog = []Descriptor{
	{
		ID:          "general",
		Name:        "General",
		Description: "General-purpose coding agent",
		Backend:     "claude",
		Tools:       []string{"read", "write", "edit", "bash"},
		Source:      SourceBuiltin,
	},
	{
		ID:          "reviewer",
		Name:        "Reviewer",
		Description: "Read-only review agent",
		Backend:     "claude",
		Tools:       []string{"read", "grep"},
		Source:      SourceBuiltin,
	},
	{
		ID:          "tester",
		Name:        "Tester",
		Description: "Test authoring and execution agent",
		Backend:     "claude",
		Tools:       []string{"read", "write", "edit", "bash"},
		Source:      SourceBuiltin,
	},
}

// Discovery resolves agent identifiers to descriptors.
// Read-only for callers; Refresh reloads the repo manifest.
type Discovery struct {
	repoPath string

	mu     sync.RWMutex
	byID   map[string]Descriptor
	loaded bool
}

// NewDiscovery creates a Discovery rooted at the given repository path.
func NewDiscovery(repoPath string) *Discovery {
	return &Discovery{repoPath: repoPath}
}

// ListAgents returns all known agents, built-in plus repo-defined, sorted
// by ID. The repo manifest is loaded lazily on first use.
func (d *Discovery) ListAgents() []Descriptor {
	d.ensureLoaded()

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Descriptor, 0, len(d.byID))
	for _, desc := range d.byID {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get resolves a single agent by ID.
func (d *Discovery) Get(id string) (Descriptor, bool) {
	d.ensureLoaded()

	d.mu.RLock()
	defer d.mu.RUnlock()
	desc, ok := d.byID[id]
	return desc, ok
}

// Refresh reloads the repo manifest, replacing any cached repo agents.
// A missing manifest is not an error; a malformed one is logged and the
// repo contribution is dropped, never fatal.
func (d *Discovery) Refresh() {
	merged := make(map[string]Descriptor, len(builtinCatalog))
	for _, desc := range builtinCatalog {
		merged[desc.ID] = desc
	}

	for _, desc := range d.loadRepoAgents() {
		// Repo definitions shadow built-ins with the same ID.
		desc.Source = SourceRepo
		merged[desc.ID] = desc
	}

	d.mu.Lock()
	d.byID = merged
	d.loaded = true
	d.mu.Unlock()
}

func (d *Discovery) ensureLoaded() {
	d.mu.RLock()
	loaded := d.loaded
	d.mu.RUnlock()
	if !loaded {
		d.Refresh()
	}
}

// loadRepoAgents reads the repo manifest. Invalid entries (missing ID) are
// skipped with a log line.
func (d *Discovery) loadRepoAgents() []Descriptor {
	if d.repoPath == "" {
		return nil
	}

	path := filepath.Join(d.repoPath, ManifestPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[agents] warning: read manifest %s: %v", path, err)
		}
		return nil
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		log.Printf("[agents] warning: malformed manifest %s: %v", path, err)
		return nil
	}

	valid := m.Agents[:0]
	for _, desc := range m.Agents {
		if desc.ID == "" {
			log.Printf("[agents] warning: skipping manifest entry without id in %s", path)
			continue
		}
		valid = append(valid, desc)
	}
	return valid
}

// Validate returns an error if the agent ID is unknown, listing what is
// available to make the failure actionable.
func (d *Discovery) Validate(id string) error {
	if id == "" {
		return nil // Unset agent falls back to the default at deploy time.
	}
	if _, ok := d.Get(id); !ok {
		known := d.ListAgents()
		ids := make([]string, len(known))
		for i, desc := range known {
			ids[i] = desc.ID
		}
		return fmt.Errorf("unknown agent %q (known: %v)", id, ids)
	}
	return nil
}
