// Package workspace provisions isolated git worktree workspaces for
// worker sessions. Each workspace is exclusively owned by one worker for
// its lifetime; distinct paths are allocated per task.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwhitten/foreman/internal/git"
)

// ErrDirtyWorkspace indicates the main repository has uncommitted changes
// and refuses to create a worktree from it.
var ErrDirtyWorkspace = errors.New("repository has uncommitted changes")

// Provisioner is the capability the orchestrator consumes to obtain an
// isolated working directory for a task.
type Provisioner interface {
	// Provision creates a workspace for the given task from baseBranch and
	// returns its path.
	Provision(taskName, baseBranch string) (string, error)
	// Remove tears down a previously provisioned workspace.
	Remove(path string) error
}

// AgentConfigFiles are untracked configuration files copied into every new
// workspace so the agent inside behaves the same as in the main checkout.
var AgentConfigFiles = []string{
	".claude/settings.local.json",
	".foreman/agents.yaml",
	".foreman/backends.yaml",
}

// Workspace describes a provisioned worktree.
type Workspace struct {
	Path       string    // Absolute path to the worktree directory
	BranchName string    // Branch created for this workspace
	TaskName   string    // Task the workspace was provisioned for
	CreatedAt  time.Time // When the workspace was created
}

// WorktreeProvisioner creates git worktrees under a base directory.
type WorktreeProvisioner struct {
	baseDir  string // Base directory for worktrees (e.g. ~/.cache/foreman/worktrees)
	repoPath string // Path to the main git repository
	git      git.Runner
	mu       sync.Mutex
	// byPath tracks workspaces created by this provisioner for cleanup.
	byPath map[string]*Workspace
}

// NewWorktreeProvisioner creates a provisioner for the repository at
// repoPath. baseDir defaults to ~/.cache/foreman/worktrees when empty.
func NewWorktreeProvisioner(baseDir, repoPath string) (*WorktreeProvisioner, error) {
	return newProvisioner(baseDir, repoPath, git.NewRunner(repoPath))
}

// NewWorktreeProvisionerWithRunner creates a provisioner with a custom git
// runner, used by tests.
func NewWorktreeProvisionerWithRunner(baseDir, repoPath string, runner git.Runner) (*WorktreeProvisioner, error) {
	return newProvisioner(baseDir, repoPath, runner)
}

func newProvisioner(baseDir, repoPath string, runner git.Runner) (*WorktreeProvisioner, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".cache", "foreman", "worktrees")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}

	return &WorktreeProvisioner{
		baseDir:  baseDir,
		repoPath: repoPath,
		git:      runner,
		byPath:   make(map[string]*Workspace),
	}, nil
}

// Provision creates a new worktree for the given task name, branched from
// baseBranch (or the current branch when empty), and copies untracked
// agent configuration into it.
func (p *WorktreeProvisioner) Provision(taskName, baseBranch string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, err := p.git.Status()
	if err != nil {
		return "", fmt.Errorf("check repository status: %w", err)
	}
	if strings.TrimSpace(status) != "" {
		return "", ErrDirtyWorkspace
	}

	branch := branchName(taskName)
	path := filepath.Join(p.baseDir, branch)

	if err := p.git.WorktreeAddNewBranch(path, branch, baseBranch); err != nil {
		return "", fmt.Errorf("create worktree: %w", err)
	}

	p.copyAgentConfig(path)

	p.byPath[path] = &Workspace{
		Path:       path,
		BranchName: branch,
		TaskName:   taskName,
		CreatedAt:  time.Now(),
	}
	return path, nil
}

// Remove tears down a workspace and deletes its branch.
func (p *WorktreeProvisioner) Remove(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.git.WorktreeRemove(path, true); err != nil {
		return fmt.Errorf("remove worktree: %w", err)
	}

	if ws, ok := p.byPath[path]; ok {
		if err := p.git.DeleteBranch(ws.BranchName); err != nil {
			log.Printf("[workspace] warning: failed to delete branch %s: %v", ws.BranchName, err)
		}
		delete(p.byPath, path)
	}

	_ = p.git.WorktreePrune()
	return nil
}

// copyAgentConfig copies untracked agent configuration files into the new
// workspace. Missing sources are skipped silently; the worktree carries
// only tracked content otherwise.
func (p *WorktreeProvisioner) copyAgentConfig(workspacePath string) {
	for _, rel := range AgentConfigFiles {
		src := filepath.Join(p.repoPath, rel)
		if _, err := os.Stat(src); err != nil {
			continue
		}

		dst := filepath.Join(workspacePath, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			log.Printf("[workspace] warning: create config dir for %s: %v", rel, err)
			continue
		}
		if err := copyFile(src, dst); err != nil {
			log.Printf("[workspace] warning: copy %s: %v", rel, err)
		}
	}
}

// BaseDir returns the base directory where workspaces are created.
func (p *WorktreeProvisioner) BaseDir() string {
	return p.baseDir
}

// List returns all workspaces created by this provisioner.
func (p *WorktreeProvisioner) List() []*Workspace {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Workspace, 0, len(p.byPath))
	for _, ws := range p.byPath {
		out = append(out, ws)
	}
	return out
}

// unsafeBranchChars matches characters stripped from task names when
// deriving branch names.
var unsafeBranchChars = regexp.MustCompile(`[^a-z0-9-]+`)

// branchName derives a unique branch name from a task name. The task name
// is slugged and a short random suffix guarantees distinct paths even for
// identical task names.
func branchName(taskName string) string {
	slug := strings.ToLower(strings.TrimSpace(taskName))
	slug = unsafeBranchChars.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	if slug == "" {
		slug = "task"
	}
	return fmt.Sprintf("worker-%s-%s", slug, uuid.New().String()[:8])
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Verify WorktreeProvisioner implements Provisioner at compile time.
var _ Provisioner = (*WorktreeProvisioner)(nil)
