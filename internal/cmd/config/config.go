// Package config provides CLI commands for managing Ensemble configuration.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	appconfig "github.com/Iron-Ham/ensemble/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify Ensemble configuration",
	Long: `View or modify Ensemble configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  ensemble config set engine.max_parallel 4
  ensemble config set session.base_delay 2s
  ensemble config set store.backend sqlite

Valid keys:
  logging.level               - debug, info, warn, error
  logging.dir                 - Directory for debug.log (empty logs to stderr)
  session.max_retries         - Retries per agent session
  session.base_delay          - First backoff delay (duration)
  session.max_delay           - Backoff cap (duration)
  session.jitter              - Randomize backoff delays (true/false)
  session.model               - Model passed to every agent CLI
  engine.continue_on_failure  - Keep running independent tasks after a failure
  engine.quality_retries      - Re-executions requested by the quality gate
  engine.autosave_interval    - Checkpoint interval (duration, 0 disables)
  engine.output_root          - Where extracted files are written
  engine.max_parallel         - Concurrent tasks per batch (0 is unlimited)
  conflict.architect_role     - Role that wins duplicate-work conflicts
  conflict.proximity_window   - Bytes between a path mention and its code block
  store.backend               - file, sqlite, s3, memory
  store.dir                   - Checkpoint directory (file backend)
  store.sqlite_path           - Database path (sqlite backend)
  store.s3_bucket             - Bucket (s3 backend)
  store.s3_prefix             - Key prefix (s3 backend)
  store.s3_region             - Region (s3 backend)
  tui.theme                   - default, monokai, dracula, nord
  tui.max_tasks               - Task rows shown at once`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/ensemble/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// Register adds the config command tree to parent.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

// validKeys maps every settable key to how its value is parsed.
var validKeys = map[string]string{
	"logging.level":              "log_level",
	"logging.dir":                "string",
	"session.max_retries":        "int",
	"session.base_delay":         "duration",
	"session.max_delay":          "duration",
	"session.jitter":             "bool",
	"session.availability_ttl":   "duration",
	"session.model":              "string",
	"engine.continue_on_failure": "bool",
	"engine.quality_retries":     "int",
	"engine.autosave_interval":   "duration",
	"engine.output_root":         "string",
	"engine.max_parallel":        "int",
	"conflict.architect_role":    "string",
	"conflict.proximity_window":  "int",
	"store.backend":              "store_backend",
	"store.dir":                  "string",
	"store.sqlite_path":          "string",
	"store.s3_bucket":            "string",
	"store.s3_prefix":            "string",
	"store.s3_region":            "string",
	"tui.theme":                  "theme",
	"tui.max_tasks":              "int",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(showView(cfg))
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// showView mirrors the config file layout so that the output of
// 'config show' can be pasted into a config file.
func showView(cfg *appconfig.Config) map[string]any {
	roles := make(map[string]any, len(cfg.Roles))
	for _, name := range cfg.RoleNames() {
		r := cfg.Roles[name]
		role := map[string]any{"vendor": r.Vendor}
		if r.Family != "" {
			role["family"] = r.Family
		}
		if len(r.Command) > 0 {
			role["command"] = r.Command
		}
		if r.PTY {
			role["pty"] = true
		}
		if r.SkipPermissions {
			role["skip_permissions"] = true
		}
		if len(r.Fallbacks) > 0 {
			role["fallbacks"] = r.Fallbacks
		}
		roles[name] = role
	}
	return map[string]any{
		"logging": map[string]any{
			"level": cfg.Logging.Level,
			"dir":   cfg.Logging.Dir,
		},
		"session": map[string]any{
			"max_retries":      cfg.Session.MaxRetries,
			"base_delay":       cfg.Session.BaseDelay.String(),
			"max_delay":        cfg.Session.MaxDelay.String(),
			"jitter":           cfg.Session.Jitter,
			"availability_ttl": cfg.Session.AvailabilityTTL.String(),
			"model":            cfg.Session.Model,
		},
		"engine": map[string]any{
			"continue_on_failure": cfg.Engine.ContinueOnFailure,
			"quality_retries":     cfg.Engine.QualityRetries,
			"autosave_interval":   cfg.Engine.AutosaveInterval.String(),
			"output_root":         cfg.Engine.OutputRoot,
			"max_parallel":        cfg.Engine.MaxParallel,
		},
		"roles": roles,
		"conflict": map[string]any{
			"architect_role":   cfg.Conflict.ArchitectRole,
			"proximity_window": cfg.Conflict.ProximityWindow,
		},
		"store": map[string]any{
			"backend":     cfg.Store.Backend,
			"dir":         cfg.Store.Dir,
			"sqlite_path": cfg.Store.SQLitePath,
			"s3_bucket":   cfg.Store.S3Bucket,
			"s3_prefix":   cfg.Store.S3Prefix,
			"s3_region":   cfg.Store.S3Region,
		},
		"tui": map[string]any{
			"theme":     cfg.TUI.Theme,
			"max_tasks": cfg.TUI.MaxTasks,
		},
	}
}

// parseValue converts a command-line value for key into the type viper
// should store.
func parseValue(key, value string) (any, error) {
	keyType, ok := validKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'ensemble config set --help' to see valid keys", key)
	}

	oneOf := func(options []string) (any, error) {
		if !slices.Contains(options, value) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(options, ", "))
		}
		return value, nil
	}

	switch keyType {
	case "log_level":
		return oneOf(appconfig.ValidLogLevels())
	case "store_backend":
		return oneOf(appconfig.ValidStoreBackends())
	case "theme":
		return oneOf(appconfig.ValidThemes())
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return intVal, nil
	case "duration":
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected a duration such as 500ms or 2s", key)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return d.String(), nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseValue(key, args[1])
	if err != nil {
		return err
	}

	// Ensure config directory exists
	configDir := appconfig.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set the value in viper
	viper.Set(key, typedValue)

	// Write to config file
	configFile := appconfig.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)
	return nil
}

// defaultConfigContent is the commented file written by 'config init'.
const defaultConfigContent = `# Ensemble Configuration

logging:
  # debug, info, warn, error
  level: info
  # Directory for debug.log; empty logs to stderr
  dir: ""

# How a single agent session retries transient failures
session:
  max_retries: 3
  base_delay: 1s
  max_delay: 30s
  jitter: true
  # How long a role availability check is reused
  availability_ttl: 30s
  # Model passed to every agent CLI (empty uses the CLI default)
  model: ""

engine:
  # Keep running tasks that do not depend on a failed one
  continue_on_failure: false
  # Re-executions requested by the quality gate
  quality_retries: 2
  # Checkpoint interval while running (0 disables)
  autosave_interval: 30s
  # Where files extracted from agent output are written (empty disables)
  output_root: .
  # Concurrent tasks per batch (0 is unlimited)
  max_parallel: 0

# Agent roles. A plan task names a role in its "agent" field.
roles:
  claude:
    vendor: claude
    fallbacks: [codex]
  codex:
    vendor: codex
    fallbacks: [claude]
  # A role for any other CLI needs an explicit command.
  # "{prompt}" is replaced by the prompt; otherwise it is sent on stdin.
  # gemini:
  #   vendor: google
  #   command: [gemini, -p, "{prompt}"]
  #   pty: false

conflict:
  # Role that wins duplicate-work conflicts
  architect_role: claude
  # Bytes after a path mention in which its code block must start
  proximity_window: 500

# Where checkpoints are kept: file, sqlite, s3, memory
store:
  backend: file
  # dir: ~/.local/share/ensemble/checkpoints
  # sqlite_path: ~/.local/share/ensemble/ensemble.db
  # s3_bucket: my-bucket
  # s3_prefix: ensemble/
  # s3_region: us-east-1

tui:
  # default, monokai, dracula, nord
  theme: default
  max_tasks: 20
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := appconfig.ConfigDir()
	configFile := appconfig.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'ensemble config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to customize Ensemble's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile := appconfig.ConfigFile()
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" && used != configFile {
		fmt.Fprintf(out, "%s (in use)\n", used)
		fmt.Fprintf(out, "%s (default location)\n", configFile)
		return nil
	}
	if _, err := os.Stat(configFile); err == nil {
		fmt.Fprintln(out, configFile)
	} else {
		fmt.Fprintf(out, "%s (not created yet; run 'ensemble config init')\n", configFile)
	}
	return nil
}
