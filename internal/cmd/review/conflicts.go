// Package review provides the command that checks agent outputs for
// conflicts, and the conflict report the run commands print.
package review

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/ensemble/internal/app"
	"github.com/Iron-Ham/ensemble/internal/cmd/output"
	appconfig "github.com/Iron-Ham/ensemble/internal/config"
	"github.com/Iron-Ham/ensemble/internal/conflict"
	"github.com/Iron-Ham/ensemble/internal/engine"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/store"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts [outputs-file]",
	Short: "Check agent outputs for conflicts",
	Long: `Check a set of agent outputs for conflicts and show how they resolve.

The outputs file is the JSON written by 'ensemble run --outputs', a list of
{"task_id", "agent", "output"} objects. With --checkpoint the outputs saved in
a plan's checkpoint are checked instead.

Duplicate work and low-severity contradictions resolve automatically. Every
other conflict is listed with the options for settling it.

The exit code is 1 when any conflict still needs a decision.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConflicts,
}

var (
	conflictsJSON       bool
	conflictsDiff       bool
	conflictsCheckpoint string
	conflictsArchitect  string
)

func init() {
	conflictsCmd.Flags().BoolVar(&conflictsJSON, "json", false, "Output the report as JSON")
	conflictsCmd.Flags().BoolVar(&conflictsDiff, "diff", true, "Show diffs for file and API conflicts")
	conflictsCmd.Flags().StringVar(&conflictsCheckpoint, "checkpoint", "", "Check the outputs saved for this plan id")
	conflictsCmd.Flags().StringVar(&conflictsArchitect, "architect", "", "Role that wins duplicate work (default from config)")
}

// Register adds all review-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(conflictsCmd)
}

func runConflicts(cmd *cobra.Command, args []string) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}

	var outputs []plan.AgentOutput
	switch {
	case conflictsCheckpoint != "" && len(args) > 0:
		return fmt.Errorf("pass either an outputs file or --checkpoint, not both")
	case conflictsCheckpoint != "":
		outputs, err = checkpointOutputs(cmd, cfg, conflictsCheckpoint)
	case len(args) == 1:
		outputs, err = LoadOutputs(args[0])
	default:
		return fmt.Errorf("an outputs file or --checkpoint is required")
	}
	if err != nil {
		return err
	}

	rconf := ResolverConfig(cfg)
	if conflictsArchitect != "" {
		rconf.ArchitectRole = conflictsArchitect
	}
	rep := Analyze(conflict.NewResolver(rconf, nil, nil), outputs)

	w := cmd.OutOrStdout()
	if conflictsJSON {
		if err := output.JSON(w, rep); err != nil {
			return err
		}
	} else {
		Render(w, rep, conflictsDiff)
	}
	if len(rep.Pending) > 0 {
		return &output.SilentError{Reason: "unresolved conflicts"}
	}
	return nil
}

// ResolverConfig maps the conflict section of cfg onto a resolver config.
func ResolverConfig(cfg *appconfig.Config) conflict.Config {
	return conflict.Config{
		ArchitectRole:   cfg.Conflict.ArchitectRole,
		ProximityWindow: cfg.Conflict.ProximityWindow,
	}
}

// LoadOutputs reads a JSON list of agent outputs.
func LoadOutputs(path string) ([]plan.AgentOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read outputs: %w", err)
	}
	var outputs []plan.AgentOutput
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse outputs %s: %w", path, err)
	}
	return outputs, nil
}

func checkpointOutputs(cmd *cobra.Command, cfg *appconfig.Config, planID string) ([]plan.AgentOutput, error) {
	ctx := output.Context(cmd)
	st, err := store.Open(ctx, app.StoreConfig(cfg.Store))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	cp, found, err := engine.LoadCheckpoint(ctx, st, planID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no checkpoint saved for plan %s", planID)
	}
	return cp.Outputs, nil
}
