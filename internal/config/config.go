package config

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/ensemble/internal/logging"
)

// Config represents the complete Ensemble configuration
type Config struct {
	Logging  LoggingConfig         `mapstructure:"logging"`
	Session  SessionConfig         `mapstructure:"session"`
	Engine   EngineConfig          `mapstructure:"engine"`
	Roles    map[string]RoleConfig `mapstructure:"roles"`
	Conflict ConflictConfig        `mapstructure:"conflict"`
	Store    StoreConfig           `mapstructure:"store"`
	TUI      TUIConfig             `mapstructure:"tui"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where debug.log is written. Empty logs to stderr.
	Dir string `mapstructure:"dir"`
}

// SessionConfig controls how a single agent session retries
type SessionConfig struct {
	// MaxRetries is how many times a failed attempt is retried (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// BaseDelay is the first backoff delay; each retry doubles it (default: 1s)
	BaseDelay time.Duration `mapstructure:"base_delay"`
	// MaxDelay caps the backoff delay (default: 30s)
	MaxDelay time.Duration `mapstructure:"max_delay"`
	// Jitter randomizes each delay between zero and its computed value (default: true)
	Jitter bool `mapstructure:"jitter"`
	// AvailabilityTTL is how long a role availability check is cached (default: 30s)
	AvailabilityTTL time.Duration `mapstructure:"availability_ttl"`
	// Model overrides the model requested from every agent CLI
	Model string `mapstructure:"model"`
}

// EngineConfig controls plan execution
type EngineConfig struct {
	// ContinueOnFailure keeps running tasks that do not depend on a failed one
	ContinueOnFailure bool `mapstructure:"continue_on_failure"`
	// QualityRetries bounds re-executions requested by the quality gate (default: 2)
	QualityRetries int `mapstructure:"quality_retries"`
	// AutosaveInterval checkpoints on a timer; 0 disables it (default: 30s)
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
	// OutputRoot is where files extracted from agent output are written.
	// Empty disables writing.
	OutputRoot string `mapstructure:"output_root"`
	// MaxParallel caps concurrent tasks in a batch; 0 is unlimited
	MaxParallel int `mapstructure:"max_parallel"`
}

// RoleConfig maps an agent role onto the CLI that serves it
type RoleConfig struct {
	Vendor string `mapstructure:"vendor"`
	Family string `mapstructure:"family"`
	// Command overrides the default invocation for the vendor.
	// An argument "{prompt}" is replaced by the prompt; otherwise it goes to stdin.
	Command []string `mapstructure:"command"`
	// PTY runs the command under a pseudo-terminal
	PTY bool `mapstructure:"pty"`
	// SkipPermissions passes the vendor's non-interactive approval flag
	SkipPermissions bool `mapstructure:"skip_permissions"`
	// Fallbacks are tried in order when this role cannot serve a task
	Fallbacks []string `mapstructure:"fallbacks"`
}

// ConflictConfig controls conflict detection
type ConflictConfig struct {
	// ArchitectRole wins duplicate-work conflicts (default: "claude")
	ArchitectRole string `mapstructure:"architect_role"`
	// ProximityWindow is how many bytes after a path mention a code block may
	// start and still belong to that path (default: 500)
	ProximityWindow int `mapstructure:"proximity_window"`
}

// StoreConfig selects where checkpoints are kept
type StoreConfig struct {
	// Backend is one of "file", "sqlite", "s3", "memory" (default: "file")
	Backend    string `mapstructure:"backend"`
	Dir        string `mapstructure:"dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Region   string `mapstructure:"s3_region"`
}

// TUIConfig controls the progress view
type TUIConfig struct {
	// Theme is the color theme (default: "default")
	Theme string `mapstructure:"theme"`
	// MaxTasks limits how many task rows are shown at once (default: 20)
	MaxTasks int `mapstructure:"max_tasks"`
}

// RoleNames returns the configured roles in sorted order.
func (c *Config) RoleNames() []string {
	names := make([]string, 0, len(c.Roles))
	for name := range c.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: logging.LevelInfo,
		},
		Session: SessionConfig{
			MaxRetries:      3,
			BaseDelay:       time.Second,
			MaxDelay:        30 * time.Second,
			Jitter:          true,
			AvailabilityTTL: 30 * time.Second,
		},
		Engine: EngineConfig{
			QualityRetries:   2,
			AutosaveInterval: 30 * time.Second,
			OutputRoot:       ".",
		},
		Roles: map[string]RoleConfig{
			"claude": {Vendor: "claude", Fallbacks: []string{"codex"}},
			"codex":  {Vendor: "codex", Fallbacks: []string{"claude"}},
		},
		Conflict: ConflictConfig{
			ArchitectRole:   "claude",
			ProximityWindow: 500,
		},
		Store: StoreConfig{
			Backend: "file",
			Dir:     filepath.Join(DataDir(), "checkpoints"),
		},
		TUI: TUIConfig{
			Theme:    "default",
			MaxTasks: 20,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Session defaults
	viper.SetDefault("session.max_retries", defaults.Session.MaxRetries)
	viper.SetDefault("session.base_delay", defaults.Session.BaseDelay)
	viper.SetDefault("session.max_delay", defaults.Session.MaxDelay)
	viper.SetDefault("session.jitter", defaults.Session.Jitter)
	viper.SetDefault("session.availability_ttl", defaults.Session.AvailabilityTTL)
	viper.SetDefault("session.model", defaults.Session.Model)

	// Engine defaults
	viper.SetDefault("engine.continue_on_failure", defaults.Engine.ContinueOnFailure)
	viper.SetDefault("engine.quality_retries", defaults.Engine.QualityRetries)
	viper.SetDefault("engine.autosave_interval", defaults.Engine.AutosaveInterval)
	viper.SetDefault("engine.output_root", defaults.Engine.OutputRoot)
	viper.SetDefault("engine.max_parallel", defaults.Engine.MaxParallel)

	// Roles are a map; viper merges a configured map over this one
	roles := make(map[string]any, len(defaults.Roles))
	for name, r := range defaults.Roles {
		roles[name] = map[string]any{"vendor": r.Vendor, "fallbacks": r.Fallbacks}
	}
	viper.SetDefault("roles", roles)

	// Conflict defaults
	viper.SetDefault("conflict.architect_role", defaults.Conflict.ArchitectRole)
	viper.SetDefault("conflict.proximity_window", defaults.Conflict.ProximityWindow)

	// Store defaults
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.dir", defaults.Store.Dir)
	viper.SetDefault("store.sqlite_path", defaults.Store.SQLitePath)
	viper.SetDefault("store.s3_bucket", defaults.Store.S3Bucket)
	viper.SetDefault("store.s3_prefix", defaults.Store.S3Prefix)
	viper.SetDefault("store.s3_region", defaults.Store.S3Region)

	// TUI defaults
	viper.SetDefault("tui.theme", defaults.TUI.Theme)
	viper.SetDefault("tui.max_tasks", defaults.TUI.MaxTasks)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ensemble")
	}
	// Fall back to ~/.config/ensemble
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ensemble"
	}
	return filepath.Join(home, ".config", "ensemble")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns where checkpoints and logs live by default
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ensemble")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ensemble"
	}
	return filepath.Join(home, ".local", "share", "ensemble")
}
