package workspace

import (
	"errors"
	"strings"
	"testing"
)

// fakeGit records worktree operations without touching a real repository.
type fakeGit struct {
	status     string
	statusErr  error
	added      []string
	removed    []string
	deletedBr  []string
	addErr     error
	removeErr  error
}

func (f *fakeGit) CurrentBranch() (string, error)      { return "main", nil }
func (f *fakeGit) BranchExists(string) (bool, error)   { return false, nil }
func (f *fakeGit) DeleteBranch(name string) error      { f.deletedBr = append(f.deletedBr, name); return nil }
func (f *fakeGit) Status() (string, error)             { return f.status, f.statusErr }
func (f *fakeGit) WorktreeList() ([]string, error)     { return f.added, nil }
func (f *fakeGit) WorktreePrune() error                { return nil }
func (f *fakeGit) Run(args ...string) (string, error)  { return "", nil }

func (f *fakeGit) WorktreeAddNewBranch(path, branch, base string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, path)
	return nil
}

func (f *fakeGit) WorktreeRemove(path string, force bool) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, path)
	return nil
}

func newTestProvisioner(t *testing.T, g *fakeGit) *WorktreeProvisioner {
	t.Helper()
	p, err := NewWorktreeProvisionerWithRunner(t.TempDir(), t.TempDir(), g)
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}
	return p
}

func TestProvisionCreatesDistinctPaths(t *testing.T) {
	g := &fakeGit{}
	p := newTestProvisioner(t, g)

	path1, err := p.Provision("build parser", "main")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	path2, err := p.Provision("build parser", "main")
	if err != nil {
		t.Fatalf("provision second: %v", err)
	}

	if path1 == path2 {
		t.Errorf("expected distinct paths for identical task names, both %s", path1)
	}
	if len(g.added) != 2 {
		t.Errorf("expected 2 worktree adds, got %d", len(g.added))
	}
	if !strings.Contains(path1, "worker-build-parser-") {
		t.Errorf("path %s does not carry the task slug", path1)
	}
}

func TestProvisionDirtyRepo(t *testing.T) {
	g := &fakeGit{status: " M internal/main.go"}
	p := newTestProvisioner(t, g)

	_, err := p.Provision("task", "main")
	if !errors.Is(err, ErrDirtyWorkspace) {
		t.Fatalf("expected ErrDirtyWorkspace, got %v", err)
	}
	if len(g.added) != 0 {
		t.Error("no worktree should be created for a dirty repository")
	}
}

func TestProvisionGitFailure(t *testing.T) {
	g := &fakeGit{addErr: errors.New("fatal: could not create work tree")}
	p := newTestProvisioner(t, g)

	_, err := p.Provision("task", "main")
	if err == nil {
		t.Fatal("expected provisioning error")
	}
	if errors.Is(err, ErrDirtyWorkspace) {
		t.Error("git failure must not be reported as a dirty workspace")
	}
}

func TestRemoveDeletesBranch(t *testing.T) {
	g := &fakeGit{}
	p := newTestProvisioner(t, g)

	path, err := p.Provision("cleanup me", "main")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if err := p.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(g.removed) != 1 || g.removed[0] != path {
		t.Errorf("expected worktree remove for %s, got %v", path, g.removed)
	}
	if len(g.deletedBr) != 1 {
		t.Errorf("expected the workspace branch to be deleted, got %v", g.deletedBr)
	}
	if len(p.List()) != 0 {
		t.Error("removed workspace should no longer be listed")
	}
}

func TestBranchNameSlugging(t *testing.T) {
	name := branchName("Fix: HTTP/2 handler (urgent!)")
	if strings.ContainsAny(name, " :/(!)") {
		t.Errorf("branch name %q contains unsafe characters", name)
	}
	if !strings.HasPrefix(name, "worker-fix-http-2-handler-urgent-") {
		t.Errorf("unexpected branch name %q", name)
	}
}
