package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}

	// Session retry defaults
	if cfg.Session.MaxRetries != 3 {
		t.Errorf("Session.MaxRetries = %d, want 3", cfg.Session.MaxRetries)
	}
	if cfg.Session.BaseDelay != time.Second {
		t.Errorf("Session.BaseDelay = %v, want 1s", cfg.Session.BaseDelay)
	}
	if cfg.Session.MaxDelay != 30*time.Second {
		t.Errorf("Session.MaxDelay = %v, want 30s", cfg.Session.MaxDelay)
	}
	if !cfg.Session.Jitter {
		t.Error("Session.Jitter should be true by default")
	}

	// Engine defaults
	if cfg.Engine.ContinueOnFailure {
		t.Error("Engine.ContinueOnFailure should be false by default")
	}
	if cfg.Engine.QualityRetries != 2 {
		t.Errorf("Engine.QualityRetries = %d, want 2", cfg.Engine.QualityRetries)
	}
	if cfg.Engine.MaxParallel != 0 {
		t.Errorf("Engine.MaxParallel = %d, want 0 (unlimited)", cfg.Engine.MaxParallel)
	}

	// Default roles fall back to each other
	if got := cfg.RoleNames(); strings.Join(got, ",") != "claude,codex" {
		t.Errorf("RoleNames() = %v, want [claude codex]", got)
	}
	if fb := cfg.Roles["claude"].Fallbacks; len(fb) != 1 || fb[0] != "codex" {
		t.Errorf("Roles[claude].Fallbacks = %v, want [codex]", fb)
	}

	if cfg.Conflict.ArchitectRole != "claude" {
		t.Errorf("Conflict.ArchitectRole = %q, want %q", cfg.Conflict.ArchitectRole, "claude")
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "file")
	}
	if cfg.TUI.Theme != "default" {
		t.Errorf("TUI.Theme = %q, want %q", cfg.TUI.Theme, "default")
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/ensemble"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		// Should be based on home directory
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "ensemble")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/ensemble/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DataDir(); got != "/custom/data/ensemble" {
		t.Errorf("DataDir() = %q, want %q", got, "/custom/data/ensemble")
	}
	if got := Default().Store.Dir; got != "/custom/data/ensemble/checkpoints" {
		t.Errorf("Default().Store.Dir = %q, want %q", got, "/custom/data/ensemble/checkpoints")
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	// Get() should return defaults when no config file exists
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}

	if cfg.Session.MaxRetries != 3 {
		t.Errorf("Get().Session.MaxRetries = %d, want 3", cfg.Session.MaxRetries)
	}
	if cfg.Engine.AutosaveInterval != 30*time.Second {
		t.Errorf("Get().Engine.AutosaveInterval = %v, want 30s", cfg.Engine.AutosaveInterval)
	}
	if _, ok := cfg.Roles["codex"]; !ok {
		t.Errorf("Get().Roles = %v, want a codex role", cfg.Roles)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	yaml := `
logging:
  level: debug
session:
  max_retries: 5
  base_delay: 250ms
engine:
  continue_on_failure: true
  max_parallel: 4
store:
  backend: sqlite
  sqlite_path: /tmp/ensemble.db
`
	viper.SetConfigType("yaml")
	if err := viper.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Session.MaxRetries != 5 {
		t.Errorf("Session.MaxRetries = %d, want 5", cfg.Session.MaxRetries)
	}
	if cfg.Session.BaseDelay != 250*time.Millisecond {
		t.Errorf("Session.BaseDelay = %v, want 250ms", cfg.Session.BaseDelay)
	}
	// Unset keys keep their defaults
	if cfg.Session.MaxDelay != 30*time.Second {
		t.Errorf("Session.MaxDelay = %v, want 30s", cfg.Session.MaxDelay)
	}
	if !cfg.Engine.ContinueOnFailure {
		t.Error("Engine.ContinueOnFailure = false, want true")
	}
	if cfg.Engine.MaxParallel != 4 {
		t.Errorf("Engine.MaxParallel = %d, want 4", cfg.Engine.MaxParallel)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.SQLitePath != "/tmp/ensemble.db" {
		t.Errorf("Store = %+v, want sqlite at /tmp/ensemble.db", cfg.Store)
	}
}

func TestLoad_InvalidReturnsValidationErrors(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("logging.level", "verbose")
	viper.Set("store.backend", "redis")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() error = nil, want validation errors")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("Load() error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("len(errors) = %d, want 2: %v", len(verrs), verrs)
	}

	// Get falls back to defaults
	if cfg := Get(); cfg.Logging.Level != "info" {
		t.Errorf("Get().Logging.Level = %q, want default %q", cfg.Logging.Level, "info")
	}
}
