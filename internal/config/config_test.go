package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"auditline/internal/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Categories["quality"].MinSteps != 2 {
		t.Fatalf("unexpected quality min_steps %d", cfg.Categories["quality"].MinSteps)
	}
	if cfg.Categories["compliance"].MinSteps != 3 {
		t.Fatalf("unexpected compliance min_steps %d", cfg.Categories["compliance"].MinSteps)
	}
	if !cfg.Categories["compliance"].RequireOwnerNotes {
		t.Fatalf("compliance should require owner notes")
	}
	if !cfg.Categories["safety"].RequireOwnerNotes {
		t.Fatalf("safety should require owner notes")
	}
	for _, cat := range []string{"quality", "efficiency"} {
		got := cfg.Categories[cat].RequireOwnerNotesFor
		if len(got) != 1 || got[0] != "rejected" {
			t.Fatalf("%s owner notes should be required for rejected, got %v", cat, got)
		}
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	if err != nil {
		t.Fatalf("parse generated default: %v", err)
	}
	if cfg.Workspace.Name != "auditline" {
		t.Fatalf("unexpected workspace name %q", cfg.Workspace.Name)
	}
	if len(cfg.Categories) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(cfg.Categories))
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Resolve(dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fallback config invalid: %v", err)
	}
}

func TestResolveReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	raw := strings.Replace(config.GenerateDefault(), "min_steps: 2", "min_steps: 5", 1)
	if err := os.WriteFile(filepath.Join(dir, "auditline.yml"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Resolve(dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Categories["quality"].MinSteps != 5 {
		t.Fatalf("override not applied, got %d", cfg.Categories["quality"].MinSteps)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "al config init") {
		t.Fatalf("expected helpful missing-file error, got %v", err)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	t.Run("missing category", func(t *testing.T) {
		cfg := config.Default()
		delete(cfg.Categories, "safety")
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("unknown status", func(t *testing.T) {
		cfg := config.Default()
		rule := cfg.Categories["quality"]
		rule.Sequence.StartStatuses = []string{"drafted"}
		cfg.Categories["quality"] = rule
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("negative min_steps", func(t *testing.T) {
		cfg := config.Default()
		rule := cfg.Categories["quality"]
		rule.MinSteps = -1
		cfg.Categories["quality"] = rule
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("pairing without description", func(t *testing.T) {
		cfg := config.Default()
		rule := cfg.Categories["quality"]
		rule.Pairings = append(rule.Pairings, config.PairingRule{
			StartActions: []string{"A"},
			EndActions:   []string{"B"},
		})
		cfg.Categories["quality"] = rule
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("unknown category key", func(t *testing.T) {
		cfg := config.Default()
		cfg.Categories["finance"] = cfg.Categories["quality"]
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
}
