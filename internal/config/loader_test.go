package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mise-kitchen/mise/internal/config"
)

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "mise.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.PostgresDSN == "" {
		t.Error("postgres_dsn must be populated")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/mise.yaml")
	if err == nil {
		t.Fatal("Load() of a missing file must fail")
	}
	if !strings.Contains(err.Error(), "config: open") {
		t.Errorf("error = %v, want open wrapping", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "mise.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := config.Load(path); err == nil {
		t.Fatal("Load() of malformed YAML must fail")
	}
}

func TestLoadFromReader_EmptyConfigIsValid(t *testing.T) {
	t.Parallel()
	// An empty config relies on defaults everywhere; validation only warns.
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.LogLevel != "" {
		t.Errorf("log_level = %q, want empty", cfg.Server.LogLevel)
	}
}
