package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Backend.Default != "claude" {
		t.Errorf("Backend.Default = %q, want claude", cfg.Backend.Default)
	}
	if cfg.Limits.OrchestratorMaxDepth != 2 || cfg.Limits.AgentMaxDepth != 1 {
		t.Errorf("Limits = %+v, want depths 2/1", cfg.Limits)
	}
	if cfg.Health.IdleAfter != 30*time.Second {
		t.Errorf("Health.IdleAfter = %v, want 30s", cfg.Health.IdleAfter)
	}
	if cfg.Health.StuckAfter != 12*time.Minute {
		t.Errorf("Health.StuckAfter = %v, want 12m", cfg.Health.StuckAfter)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
anthropic:
  api_key: test-key
backend:
  default: codex
  model: gpt-5
limits:
  max_concurrent_workers: 3
health:
  idle_after: 45s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want test-key", cfg.Anthropic.APIKey)
	}
	if cfg.Backend.Default != "codex" || cfg.Backend.Model != "gpt-5" {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Limits.MaxConcurrentWorkers != 3 {
		t.Errorf("MaxConcurrentWorkers = %d, want 3", cfg.Limits.MaxConcurrentWorkers)
	}
	if cfg.Health.IdleAfter != 45*time.Second {
		t.Errorf("IdleAfter = %v, want 45s", cfg.Health.IdleAfter)
	}
	// Unset keys keep their defaults.
	if cfg.Limits.OrchestratorMaxDepth != 2 {
		t.Errorf("OrchestratorMaxDepth = %d, want default 2", cfg.Limits.OrchestratorMaxDepth)
	}
}

func TestLoadFromPathExpandsEnv(t *testing.T) {
	t.Setenv("FOREMAN_TEST_KEY", "expanded-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "anthropic:\n  api_key: ${FOREMAN_TEST_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Anthropic.APIKey != "expanded-secret" {
		t.Errorf("APIKey = %q, want expanded-secret", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFromPath() on missing file should fail")
	}
}
