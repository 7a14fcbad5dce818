package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appconfig "github.com/Iron-Ham/ensemble/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		want    any
		wantErr bool
	}{
		{"engine.max_parallel", "4", 4, false},
		{"engine.max_parallel", "-1", nil, true},
		{"engine.max_parallel", "four", nil, true},
		{"engine.continue_on_failure", "true", true, false},
		{"engine.continue_on_failure", "yes", nil, true},
		{"session.base_delay", "1500ms", "1.5s", false},
		{"session.base_delay", "soon", nil, true},
		{"logging.level", "debug", "debug", false},
		{"logging.level", "trace", nil, true},
		{"store.backend", "s3", "s3", false},
		{"store.backend", "redis", nil, true},
		{"tui.theme", "nord", "nord", false},
		{"session.model", "opus", "opus", false},
		{"roles.claude.vendor", "claude", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseValue(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseValue() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestDefaultConfigContentIsValid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	appconfig.SetDefaults()

	viper.SetConfigType("yaml")
	if err := viper.ReadConfig(strings.NewReader(defaultConfigContent)); err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	cfg, err := appconfig.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.RoleNames(); len(got) != 2 {
		t.Errorf("RoleNames() = %v, want claude and codex", got)
	}
}

func run(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)
	err := fn(c, args)
	return buf.String(), err
}

func TestConfigInitAndPath(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	want := filepath.Join(dir, "ensemble", "config.yaml")

	out, err := run(t, runConfigPath)
	if err != nil {
		t.Fatalf("runConfigPath() error = %v", err)
	}
	if !strings.Contains(out, "not created yet") {
		t.Errorf("path before init = %q, want a not-created note", out)
	}

	if _, err := run(t, runConfigInit); err != nil {
		t.Fatalf("runConfigInit() error = %v", err)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if string(data) != defaultConfigContent {
		t.Error("config file content differs from the template")
	}

	if _, err := run(t, runConfigInit); err == nil {
		t.Error("second init error = nil, want already exists")
	}

	out, _ = run(t, runConfigPath)
	if strings.TrimSpace(out) != want {
		t.Errorf("path after init = %q, want %q", out, want)
	}
}

func TestConfigSetAndShow(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	appconfig.SetDefaults()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := run(t, runConfigSet, "engine.max_parallel", "3"); err != nil {
		t.Fatalf("runConfigSet() error = %v", err)
	}
	if _, err := os.Stat(appconfig.ConfigFile()); err != nil {
		t.Errorf("config file not written: %v", err)
	}

	out, err := run(t, runConfigShow)
	if err != nil {
		t.Fatalf("runConfigShow() error = %v", err)
	}
	for _, want := range []string{"max_parallel: 3", "architect_role: claude", "base_delay: 1s", "vendor: codex"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}
