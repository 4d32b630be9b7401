package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != BackendCLI {
		t.Errorf("expected default backend cli, got %q", cfg.Backend)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected default 3 attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if !cfg.Sync.Update || !cfg.Sync.RespectStatus {
		t.Errorf("expected update and respect_status on by default: %+v", cfg.Sync)
	}
	if cfg.Sync.Prune {
		t.Errorf("prune must default off")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "specsync.yaml")
	content := `
repo: owner/repo
backend: rest
spec_path: backlog.md
sync:
  prune: true
  require_milestone: true
concurrency:
  enabled: true
  max_workers: 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Repo != "owner/repo" || cfg.Backend != BackendREST || cfg.SpecPath != "backlog.md" {
		t.Errorf("file values not loaded: %+v", cfg)
	}
	if !cfg.Sync.Prune || !cfg.Sync.RequireMilestone {
		t.Errorf("sync section not loaded: %+v", cfg.Sync)
	}
	if !cfg.Concurrency.Enabled || cfg.Concurrency.MaxWorkers != 8 {
		t.Errorf("concurrency section not loaded: %+v", cfg.Concurrency)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Backend: "carrier-pigeon", Repo: "owner/repo"}
	if err := cfg.Validate(); err == nil {
		t.Errorf("unknown backend accepted")
	}
	cfg = &Config{Backend: BackendCLI}
	if err := cfg.Validate(); err == nil {
		t.Errorf("missing repo accepted")
	}
}

func TestLoadMissingNamedFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("explicitly named missing config did not fail")
	}
}
