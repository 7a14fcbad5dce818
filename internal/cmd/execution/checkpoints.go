package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/ensemble/internal/app"
	"github.com/Iron-Ham/ensemble/internal/cmd/output"
	appconfig "github.com/Iron-Ham/ensemble/internal/config"
	"github.com/Iron-Ham/ensemble/internal/engine"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/store"
	"github.com/Iron-Ham/ensemble/internal/tui/styles"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "List saved checkpoints",
	Long: `List the plans whose runs left a checkpoint behind.

A checkpoint is kept when a run fails or is interrupted, and removed when the
plan completes. Use --delete to drop one without resuming it.`,
	Args: cobra.NoArgs,
	RunE: runCheckpoints,
}

var (
	checkpointsJSON   bool
	checkpointsDelete string
)

func init() {
	checkpointsCmd.Flags().BoolVar(&checkpointsJSON, "json", false, "Output checkpoints as JSON")
	checkpointsCmd.Flags().StringVar(&checkpointsDelete, "delete", "", "Delete the checkpoint of this plan id")
}

// openStore opens the configured checkpoint store.
var openStore = func(ctx context.Context, cfg *appconfig.Config) (store.Store, error) {
	return store.Open(ctx, app.StoreConfig(cfg.Store))
}

// CheckpointInfo summarizes one saved checkpoint.
type CheckpointInfo struct {
	PlanID    string    `json:"plan_id"`
	Reason    string    `json:"reason"`
	SavedAt   time.Time `json:"saved_at"`
	Completed int       `json:"completed"`
	Tasks     int       `json:"tasks"`
}

func runCheckpoints(cmd *cobra.Command, _ []string) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	ctx := output.Context(cmd)
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	w := cmd.OutOrStdout()
	if checkpointsDelete != "" {
		key := store.CheckpointKey(checkpointsDelete)
		if _, found, err := engine.LoadCheckpoint(ctx, st, checkpointsDelete); err != nil {
			return err
		} else if !found {
			return fmt.Errorf("no checkpoint saved for plan %s", checkpointsDelete)
		}
		if err := st.Delete(ctx, key); err != nil {
			return err
		}
		fmt.Fprintf(w, "Deleted checkpoint for plan %s\n", checkpointsDelete)
		return nil
	}

	infos, err := ListCheckpoints(ctx, st)
	if err != nil {
		return err
	}
	if checkpointsJSON {
		return output.JSON(w, infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "No checkpoints saved.")
		return nil
	}

	s := styles.New(styles.ThemeDefault)
	out := s.Header.Render(fmt.Sprintf("%-24s %-10s %-20s %s", "PLAN", "REASON", "SAVED", "PROGRESS")) + "\n"
	for _, info := range infos {
		out += fmt.Sprintf("%-24s %-10s %-20s %d/%d tasks\n",
			info.PlanID, info.Reason, info.SavedAt.Local().Format("2006-01-02 15:04:05"), info.Completed, info.Tasks)
	}
	output.Styled(w, out)
	return nil
}

// ListCheckpoints loads every checkpoint in st, ordered by plan id.
func ListCheckpoints(ctx context.Context, st store.Store) ([]CheckpointInfo, error) {
	keys, err := st.List(ctx, store.CheckpointKey(""))
	if err != nil {
		return nil, err
	}
	infos := make([]CheckpointInfo, 0, len(keys))
	for _, key := range keys {
		planID := strings.TrimPrefix(key, store.CheckpointKey(""))
		cp, found, err := engine.LoadCheckpoint(ctx, st, planID)
		if err != nil {
			return nil, err
		}
		if !found || cp.Plan == nil {
			continue
		}
		info := CheckpointInfo{PlanID: planID, Reason: cp.Reason, SavedAt: cp.SavedAt}
		for _, t := range cp.Plan.AllTasks() {
			info.Tasks++
			if t.Status == plan.TaskCompleted {
				info.Completed++
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}
