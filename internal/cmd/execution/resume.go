package execution

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/ensemble/internal/app"
	"github.com/Iron-Ham/ensemble/internal/engine"
	"github.com/Iron-Ham/ensemble/internal/plan"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <plan-id>",
	Short: "Continue a plan from its checkpoint",
	Long: `Continue a failed or interrupted run from the checkpoint saved for it.

Completed tasks keep their outputs and are not run again. Every other task,
including failed and skipped ones, is retried. Use 'ensemble checkpoints' to
list the plans that can be resumed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var resumeOpts runFlags

func init() {
	resumeOpts.register(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	planID := args[0]
	return execute(cmd, resumeOpts, job{
		plan: func(ctx context.Context, a *app.App) (*plan.Plan, error) {
			cp, found, err := engine.LoadCheckpoint(ctx, a.Store, planID)
			if err != nil {
				return nil, err
			}
			if !found || cp.Plan == nil {
				return nil, fmt.Errorf("no checkpoint saved for plan %s (see 'ensemble checkpoints')", planID)
			}
			return cp.Plan, nil
		},
		start: func(ctx context.Context, a *app.App) (*engine.Summary, error) {
			return a.Engine.Resume(ctx, planID)
		},
	})
}
