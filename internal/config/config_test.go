package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CURATOR_CONFIG", "")
	t.Setenv("CURATOR_DB_PATH", "")
	t.Setenv("NCBI_API_KEY", "")

	cfg := Load()
	if cfg.Database.Path != "curator.db" {
		t.Errorf("Database.Path = %q, want curator.db", cfg.Database.Path)
	}
	if cfg.Sync.FloorYear != 1990 || cfg.Sync.WindowYears != 5 {
		t.Errorf("Sync windowing = %d/%d, want 1990/5", cfg.Sync.FloorYear, cfg.Sync.WindowYears)
	}
	if cfg.Sync.BatchDelay() != 350*time.Millisecond {
		t.Errorf("BatchDelay() = %v, want 350ms", cfg.Sync.BatchDelay())
	}
	if cfg.Classifier.AutoApproveAt != 0.8 {
		t.Errorf("AutoApproveAt = %v, want 0.8", cfg.Classifier.AutoApproveAt)
	}
}

func TestLoad_FileMergeAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
logLevel: debug
sync:
  terms: ["cardiac stent", "drug-eluting stent"]
  floorYear: 2000
ncbi:
  apiKey: from-file
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CURATOR_CONFIG", path)
	t.Setenv("NCBI_API_KEY", "from-env")
	t.Setenv("CURATOR_DB_PATH", "")

	cfg := Load()
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.Sync.Terms) != 2 {
		t.Errorf("Sync.Terms = %v, want 2 terms", cfg.Sync.Terms)
	}
	if cfg.Sync.FloorYear != 2000 {
		t.Errorf("Sync.FloorYear = %d, want 2000", cfg.Sync.FloorYear)
	}
	// File value exists but the environment wins.
	if cfg.NCBI.APIKey != "from-env" {
		t.Errorf("NCBI.APIKey = %q, want env override", cfg.NCBI.APIKey)
	}
	// Unset fields keep their defaults.
	if cfg.Sync.WindowYears != 5 {
		t.Errorf("Sync.WindowYears = %d, want default 5", cfg.Sync.WindowYears)
	}
}
