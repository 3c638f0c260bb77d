package agents

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, repo, content string) {
	t.Helper()
	dir := filepath.Join(repo, ".foreman")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "agents.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestListAgentsBuiltinOnly(t *testing.T) {
	d := NewDiscovery(t.TempDir())

	list := d.ListAgents()
	if len(list) != len(builtinCatalog) {
		t.Fatalf("expected %d builtin agents, got %d", len(builtinCatalog), len(list))
	}
	for _, desc := range list {
		if desc.Source != SourceBuiltin {
			t.Errorf("agent %s source = %q, want builtin", desc.ID, desc.Source)
		}
	}
}

func TestRepoAgentsMergeAndShadow(t *testing.T) {
	repo := t.TempDir()
	writeManifest(t, repo, `
agents:
  - id: migrator
    name: Migrator
    description: Schema migration agent
    backend: claude
    tools: [read, write, bash]
  - id: general
    name: Custom General
    backend: codex
`)

	d := NewDiscovery(repo)

	migrator, ok := d.Get("migrator")
	if !ok {
		t.Fatal("repo agent migrator not found")
	}
	if migrator.Source != SourceRepo {
		t.Errorf("migrator source = %q, want repo", migrator.Source)
	}

	// Repo definitions shadow built-ins with the same ID.
	general, ok := d.Get("general")
	if !ok {
		t.Fatal("general not found")
	}
	if general.Backend != "codex" || general.Source != SourceRepo {
		t.Errorf("general not shadowed by repo entry: %+v", general)
	}
}

func TestMalformedManifestIgnored(t *testing.T) {
	repo := t.TempDir()
	writeManifest(t, repo, "agents: [not: {valid")

	d := NewDiscovery(repo)

	// Built-ins must still be available.
	if _, ok := d.Get("general"); !ok {
		t.Error("builtin agents lost after malformed manifest")
	}
}

func TestManifestEntriesWithoutIDSkipped(t *testing.T) {
	repo := t.TempDir()
	writeManifest(t, repo, `
agents:
  - name: No ID
    backend: claude
  - id: ok
    backend: claude
`)

	d := NewDiscovery(repo)
	if _, ok := d.Get("ok"); !ok {
		t.Error("valid entry should survive a sibling without id")
	}
	if len(d.ListAgents()) != len(builtinCatalog)+1 {
		t.Errorf("expected builtins + 1 repo agent, got %d", len(d.ListAgents()))
	}
}

func TestRefreshPicksUpChanges(t *testing.T) {
	repo := t.TempDir()
	d := NewDiscovery(repo)

	if _, ok := d.Get("late"); ok {
		t.Fatal("late agent should not exist yet")
	}

	writeManifest(t, repo, "agents:\n  - id: late\n    backend: claude\n")
	d.Refresh()

	if _, ok := d.Get("late"); !ok {
		t.Error("refresh should pick up new manifest entries")
	}
}

func TestValidate(t *testing.T) {
	d := NewDiscovery(t.TempDir())

	if err := d.Validate(""); err != nil {
		t.Errorf("empty agent id should validate: %v", err)
	}
	if err := d.Validate("general"); err != nil {
		t.Errorf("builtin agent should validate: %v", err)
	}
	if err := d.Validate("nope"); err == nil {
		t.Error("unknown agent should fail validation")
	}
}
