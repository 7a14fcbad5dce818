package planning

import (
	"fmt"
	"io"

	"github.com/Iron-Ham/ensemble/internal/cmd/output"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/scheduler"
	"github.com/Iron-Ham/ensemble/internal/tui/styles"
	"github.com/spf13/cobra"
)

var batchesCmd = &cobra.Command{
	Use:   "batches <plan-file>",
	Short: "Show the execution batches of a plan",
	Long: `Show how each phase of a plan would be split into batches.

Tasks in one batch run in parallel. A task lands in the first batch after
all of its dependencies; tasks that are not parallelizable or that touch the
same files are kept in separate batches.

Use --graph to list each task with its dependencies instead, or --ready to
show which tasks could start right now given their recorded statuses.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatches,
}

var (
	batchesGraph bool
	batchesReady bool
	batchesJSON  bool
)

func init() {
	batchesCmd.Flags().BoolVar(&batchesGraph, "graph", false, "Show the dependency graph instead of batches")
	batchesCmd.Flags().BoolVar(&batchesReady, "ready", false, "Show ready, blocked and unreachable tasks")
	batchesCmd.Flags().BoolVar(&batchesJSON, "json", false, "Output batches as JSON")
}

// BatchOutput is the JSON form of one batch.
type BatchOutput struct {
	Phase            string   `json:"phase"`
	Index            int      `json:"index"`
	TaskIDs          []string `json:"task_ids"`
	EstimatedMinutes int      `json:"estimated_minutes"`
}

func runBatches(cmd *cobra.Command, args []string) error {
	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}
	if err := scheduler.Validate(p).Err(); err != nil {
		return err
	}
	return writeBatches(cmd.OutOrStdout(), p)
}

func writeBatches(w io.Writer, p *plan.Plan) error {
	st := styles.New(styles.ThemeDefault)

	switch {
	case batchesGraph:
		for _, ph := range p.Phases {
			output.Styled(w, st.Header.Render("Phase "+phaseName(ph))+"\n")
			output.Styled(w, scheduler.RenderGraph(ph.Tasks))
		}
		return nil
	case batchesReady:
		output.Styled(w, scheduler.RenderSnapshot(scheduler.RecomputeSchedule(p.AllTasks())))
		return nil
	}

	var all []BatchOutput
	total := 0
	for i, ph := range p.Phases {
		batches, err := scheduler.BuildBatches(ph.Tasks)
		if err != nil {
			return fmt.Errorf("phase %s: %w", ph.ID, err)
		}
		for _, b := range batches {
			all = append(all, BatchOutput{Phase: ph.ID, Index: b.Index, TaskIDs: b.TaskIDs(), EstimatedMinutes: b.EstimatedMinutes})
			total += b.EstimatedMinutes
		}
		if batchesJSON {
			continue
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		output.Styled(w, st.Title.Render("Phase "+phaseName(ph))+"\n")
		output.Styled(w, scheduler.RenderBatches(batches))
	}

	if batchesJSON {
		return output.JSON(w, all)
	}
	output.Styled(w, "\n"+st.Muted.Render(fmt.Sprintf("%d batch(es), ~%d min on the critical path", len(all), total))+"\n")
	return nil
}

func phaseName(ph plan.Phase) string {
	if ph.Name != "" && ph.Name != ph.ID {
		return fmt.Sprintf("%s (%s)", ph.ID, ph.Name)
	}
	return ph.ID
}
