// Package backend resolves which execution backend and model to use for a
// given prompt and agent. Resolution follows a strict precedence: an
// explicit hint in the prompt text, then the repository configuration
// file, then the process-wide default setting.
package backend

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Source identifies which precedence level produced a selection.
type Source string

const (
	// SourceUserRequest means the prompt text carried an explicit hint.
	SourceUserRequest Source = "user-request"
	// SourceRepoConfig means the repository configuration file decided.
	SourceRepoConfig Source = "repo-config"
	// SourceDefault means the process-wide default setting decided.
	SourceDefault Source = "default-setting"
)

// Known backend identifiers.
const (
	BackendClaude = "claude"
	BackendCodex  = "codex"
	BackendAPI    = "api"
)

// HardDefaultBackend is the last-resort backend when nothing else resolves.
const HardDefaultBackend = BackendClaude

// ConfigPath is the repo-relative path of the backend configuration file.
const ConfigPath = ".foreman/backends.yaml"

// cacheTTL bounds how stale the cached repo config may be between reloads.
const cacheTTL = 30 * time.Second

// Selection is the result of backend resolution.
type Selection struct {
	// Backend is the execution backend identifier.
	Backend string
	// Model is the optional model override.
	Model string
	// Source is the precedence level that produced this selection.
	Source Source
}

// entry is one backend/model pair in the repo config.
type entry struct {
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`
}

// repoConfig is the on-disk shape of .foreman/backends.yaml.
type repoConfig struct {
	Default entry            `yaml:"default"`
	Agents  map[string]entry `yaml:"agents"`
}

// knownBackends validates configured backend values.
var knownBackends = map[string]bool{
	BackendClaude: true,
	BackendCodex:  true,
	BackendAPI:    true,
}

// hintPatterns match explicit backend requests in prompt text, checked in
// order. The first match wins.
var hintPatterns = []struct {
	re      *regexp.Regexp
	backend string
	// modelGroup, when > 0, is the capture group carrying a model name.
	modelGroup int
}{
	{regexp.MustCompile(`(?i)\buse\s+claude\b`), BackendClaude, 0},
	{regexp.MustCompile(`(?i)\buse\s+codex\b`), BackendCodex, 0},
	{regexp.MustCompile(`(?i)\bclaude:([a-z0-9._-]+)`), BackendClaude, 1},
	{regexp.MustCompile(`(?i)\bcodex:([a-z0-9._-]+)`), BackendCodex, 1},
	{regexp.MustCompile(`(?i)\b(claude-[a-z0-9.-]+)\b`), BackendClaude, 1},
	{regexp.MustCompile(`(?i)\b(opus|sonnet|haiku)\b`), BackendClaude, 1},
}

// Selector resolves backend selections. It caches the repo configuration
// with a short TTL and can be refreshed explicitly or by the file watcher.
type Selector struct {
	repoPath       string
	defaultBackend string // process-wide setting; may be empty or invalid
	defaultModel   string

	mu       sync.Mutex
	cached   *repoConfig
	loadedAt time.Time

	watcher *watcher
}

// NewSelector creates a Selector for the repository at repoPath.
// defaultBackend and defaultModel come from process-wide configuration and
// may be empty; an unknown defaultBackend silently falls back to the
// hard-coded default at selection time.
func NewSelector(repoPath, defaultBackend, defaultModel string) *Selector {
	return &Selector{
		repoPath:       repoPath,
		defaultBackend: defaultBackend,
		defaultModel:   defaultModel,
	}
}

// Select resolves the backend for a prompt and agent identifier.
// Precedence, first match wins:
//  1. Explicit hint in the prompt text.
//  2. Agent-specific, then default entry in the repo config file.
//  3. Process-wide default setting, hard default if unset or invalid.
func (s *Selector) Select(prompt, agentID string) Selection {
	if sel, ok := s.fromPrompt(prompt); ok {
		return sel
	}
	if sel, ok := s.fromRepoConfig(agentID); ok {
		return sel
	}
	return s.fromDefault()
}

// fromPrompt scans the prompt for explicit backend hints.
func (s *Selector) fromPrompt(prompt string) (Selection, bool) {
	for _, hp := range hintPatterns {
		m := hp.re.FindStringSubmatch(prompt)
		if m == nil {
			continue
		}
		sel := Selection{Backend: hp.backend, Source: SourceUserRequest}
		if hp.modelGroup > 0 && hp.modelGroup < len(m) {
			sel.Model = strings.ToLower(m[hp.modelGroup])
		}
		return sel, true
	}
	return Selection{}, false
}

// fromRepoConfig consults the cached repository configuration.
// Malformed or missing config degrades silently to the next level.
func (s *Selector) fromRepoConfig(agentID string) (Selection, bool) {
	cfg := s.config()
	if cfg == nil {
		return Selection{}, false
	}

	if agentID != "" {
		if e, ok := cfg.Agents[agentID]; ok && knownBackends[e.Backend] {
			return Selection{Backend: e.Backend, Model: e.Model, Source: SourceRepoConfig}, true
		}
	}
	if knownBackends[cfg.Default.Backend] {
		return Selection{Backend: cfg.Default.Backend, Model: cfg.Default.Model, Source: SourceRepoConfig}, true
	}
	return Selection{}, false
}

// fromDefault applies the process-wide setting with hard fallback.
func (s *Selector) fromDefault() Selection {
	backend := s.defaultBackend
	if !knownBackends[backend] {
		if backend != "" {
			log.Printf("[backend] invalid default backend %q, falling back to %s", backend, HardDefaultBackend)
		}
		return Selection{Backend: HardDefaultBackend, Source: SourceDefault}
	}
	return Selection{Backend: backend, Model: s.defaultModel, Source: SourceDefault}
}

// config returns the cached repo config, reloading when the TTL expired.
func (s *Selector) config() *repoConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Since(s.loadedAt) < cacheTTL {
		return s.cached
	}
	s.cached = s.loadLocked()
	s.loadedAt = time.Now()
	return s.cached
}

// Refresh discards the cached repo config so the next selection reloads it.
func (s *Selector) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.loadedAt = time.Time{}
}

// loadLocked reads and parses the repo config file. Errors are logged and
// produce a nil config (degrade to the next precedence level).
// Caller must hold s.mu.
func (s *Selector) loadLocked() *repoConfig {
	if s.repoPath == "" {
		return nil
	}

	path := filepath.Join(s.repoPath, ConfigPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[backend] warning: read config %s: %v", path, err)
		}
		return nil
	}

	var cfg repoConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Printf("[backend] warning: malformed config %s: %v", path, err)
		return nil
	}
	return &cfg
}
