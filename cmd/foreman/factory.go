package main

import (
	"fmt"
	"os"

	"github.com/mwhitten/foreman/internal/agents"
	"github.com/mwhitten/foreman/internal/backend"
	"github.com/mwhitten/foreman/internal/config"
	"github.com/mwhitten/foreman/internal/executor"
	"github.com/mwhitten/foreman/internal/orchestrator"
	"github.com/mwhitten/foreman/internal/safety"
	"github.com/mwhitten/foreman/internal/state"
	"github.com/mwhitten/foreman/internal/worker"
	"github.com/mwhitten/foreman/internal/workspace"
)

// openWritableDB opens (and migrates) the database that run-style
// commands write to. Returns nil when persistence is disabled.
func openWritableDB(cfg *config.Config, cwd string) (*state.DB, error) {
	if cfg.State.Disabled {
		return nil, nil
	}
	path := cfg.State.DBPath
	if path == "" {
		path = state.ProjectDBPath(cwd)
	}
	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// openReadableDB opens the database read-style commands inspect: the
// configured path, then the project database, then the global one.
// Returns nil without error when no database exists yet.
func openReadableDB(cfg *config.Config, cwd string) (*state.DB, error) {
	path := cfg.State.DBPath
	if path == "" {
		path = state.ProjectDBPath(cwd)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = state.GlobalDBPath()
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// buildExecutor picks the execution path for the configured default
// backend: "api" goes through the Anthropic API, everything else spawns
// the backend's CLI.
func buildExecutor(cfg *config.Config) (executor.Executor, error) {
	if cfg.Backend.Default == backend.BackendAPI {
		return executor.NewAPIExecutor(executor.APIConfig{
			APIKey:        cfg.Anthropic.APIKey,
			Model:         cfg.Backend.Model,
			UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
	}
	if err := CheckBackendCLI(cfg.Backend.Default); err != nil {
		return nil, err
	}
	return executor.NewCLIExecutor(nil), nil
}

// buildService assembles a fully wired orchestrator for the current
// repository. The returned selector should be closed after use to stop
// its file watcher; store may be nil when persistence is disabled.
func buildService(cfg *config.Config, cwd string, store *state.DB, manualDeploy bool) (*orchestrator.Service, *backend.Selector, error) {
	exec, err := buildExecutor(cfg)
	if err != nil {
		return nil, nil, err
	}

	baseDir := cfg.Workspace.BaseDir
	provisioner, err := workspace.NewWorktreeProvisioner(baseDir, cwd)
	if err != nil {
		return nil, nil, fmt.Errorf("create provisioner: %w", err)
	}

	selector := backend.NewSelector(cwd, cfg.Backend.Default, cfg.Backend.Model)
	if err := selector.Watch(); err != nil {
		// Selection still works without live invalidation.
		fmt.Fprintf(os.Stderr, "warning: backend config watcher unavailable: %v\n", err)
	}

	var opts orchestrator.Options
	opts.Provisioner = provisioner
	opts.Executor = exec
	opts.Selector = selector
	opts.Agents = agents.NewDiscovery(cwd)
	if store != nil {
		opts.Store = store
	}
	opts.Limits = safety.Limits{
		OrchestratorMaxDepth: cfg.Limits.OrchestratorMaxDepth,
		AgentMaxDepth:        cfg.Limits.AgentMaxDepth,
		MaxConcurrentWorkers: cfg.Limits.MaxConcurrentWorkers,
	}
	opts.Health = worker.Thresholds{
		TickInterval:  cfg.Health.TickInterval,
		IdleAfter:     cfg.Health.IdleAfter,
		ProgressAfter: cfg.Health.ProgressAfter,
		StuckAfter:    cfg.Health.StuckAfter,
	}
	opts.ManualDeploy = manualDeploy

	return orchestrator.NewService(opts), selector, nil
}
