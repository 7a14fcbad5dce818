// Package execution provides the commands that run plans and manage their
// checkpoints.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/ensemble/internal/app"
	"github.com/Iron-Ham/ensemble/internal/cmd/output"
	"github.com/Iron-Ham/ensemble/internal/cmd/review"
	appconfig "github.com/Iron-Ham/ensemble/internal/config"
	"github.com/Iron-Ham/ensemble/internal/engine"
	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/scheduler"
	"github.com/Iron-Ham/ensemble/internal/tui"
	"github.com/Iron-Ham/ensemble/internal/tui/styles"
	"github.com/Iron-Ham/ensemble/internal/util"
)

var runCmd = &cobra.Command{
	Use:   "run <plan-file>",
	Short: "Run a plan",
	Long: `Run every phase of a plan, batch by batch, across the configured agents.

Generated files are written under --root (default from engine.output_root).
When the run ends the agent outputs are checked for conflicts; conflicts that
cannot be settled automatically are listed with their options.

A run that fails or is interrupted keeps its checkpoint and can be continued
with 'ensemble resume <plan-id>'.

In a terminal a live progress view is shown; press p to pause and q to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

// runFlags are the options run and resume share.
type runFlags struct {
	root              string
	continueOnFailure bool
	noTUI             bool
	json              bool
	outputs           string
}

func (f *runFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.root, "root", "", "Directory generated files are written under")
	c.Flags().BoolVar(&f.continueOnFailure, "continue-on-failure", false, "Keep running after a task fails")
	c.Flags().BoolVar(&f.noTUI, "no-tui", false, "Print progress lines instead of the live view")
	c.Flags().BoolVar(&f.json, "json", false, "Print the result as JSON")
	c.Flags().StringVar(&f.outputs, "outputs", "", "Write the agent outputs to this JSON file")
}

var runOpts runFlags

func init() {
	runOpts.register(runCmd)
}

// newApp builds the components for one run.
var newApp = func(ctx context.Context, cfg *appconfig.Config) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{})
}

// job is what a command asks execute to run: the plan to show and how to
// start the engine on it.
type job struct {
	plan  func(ctx context.Context, a *app.App) (*plan.Plan, error)
	start func(ctx context.Context, a *app.App) (*engine.Summary, error)
}

// RunReport is the JSON form of a finished run.
type RunReport struct {
	PlanID     string              `json:"plan_id"`
	State      engine.State        `json:"state"`
	Completed  int                 `json:"completed"`
	Failed     int                 `json:"failed"`
	Skipped    int                 `json:"skipped"`
	DurationMS int64               `json:"duration_ms"`
	Results    []engine.TaskResult `json:"results"`
	Conflicts  review.Report       `json:"conflicts"`
	Error      string              `json:"error,omitempty"`
}

func runRun(cmd *cobra.Command, args []string) error {
	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}
	if err := scheduler.Validate(p).Err(); err != nil {
		return err
	}
	return execute(cmd, runOpts, job{
		plan: func(context.Context, *app.App) (*plan.Plan, error) { return p, nil },
		start: func(ctx context.Context, a *app.App) (*engine.Summary, error) {
			return a.Engine.Execute(ctx, p)
		},
	})
}

func execute(cmd *cobra.Command, f runFlags, j job) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	if f.root != "" {
		cfg.Engine.OutputRoot = f.root
	}
	if f.continueOnFailure {
		cfg.Engine.ContinueOnFailure = true
	}

	ctx, stop := signal.NotifyContext(output.Context(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := j.plan(ctx, a)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	run := func(ctx context.Context) (*engine.Summary, error) { return j.start(ctx, a) }

	var summary *engine.Summary
	var runErr error
	if !f.noTUI && !f.json && output.IsTerminal(w) {
		summary, runErr = tui.Run(ctx, a.Bus, a.Engine, p, tui.Options{
			Theme:    cfg.TUI.Theme,
			MaxTasks: cfg.TUI.MaxTasks,
		}, run)
	} else {
		progress, pattern := w, event.Wildcard
		if f.json {
			// Only engine milestones on stderr; the report carries the rest.
			progress, pattern = cmd.ErrOrStderr(), "engine.*"
		}
		summary, runErr = runPlain(ctx, progress, a.Bus, pattern, run)
	}
	if summary == nil {
		return runErr
	}

	outputs := a.Engine.Outputs()
	if f.outputs != "" {
		if err := writeOutputs(f.outputs, outputs); err != nil {
			return err
		}
	}
	rep := review.Analyze(a.Resolver, outputs)

	if f.json {
		if err := output.JSON(w, newRunReport(summary, rep, runErr)); err != nil {
			return err
		}
	} else {
		renderSummary(w, summary, runErr)
		review.Render(w, rep, true)
	}

	switch {
	case runErr != nil:
		return &output.SilentError{Reason: runErr.Error()}
	case summary.State != engine.StateCompleted:
		return &output.SilentError{Reason: "plan " + string(summary.State)}
	case len(rep.Pending) > 0:
		return &output.SilentError{Reason: "unresolved conflicts"}
	}
	return nil
}

// runPlain runs while printing one line to w for each notable event whose
// type matches pattern.
func runPlain(ctx context.Context, w io.Writer, bus *event.Bus, pattern string, run tui.RunFunc) (*engine.Summary, error) {
	var mu sync.Mutex
	id := bus.Subscribe(pattern, func(ev event.Event) {
		line, ok := tui.FormatEvent(ev)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		output.Styled(w, line+"\n")
	})
	defer bus.Unsubscribe(id)
	return run(ctx)
}

func renderSummary(w io.Writer, s *engine.Summary, runErr error) {
	st := styles.New(styles.ThemeDefault)

	headline := fmt.Sprintf("Plan %s %s in %s: %d completed, %d failed, %d skipped",
		s.PlanID, s.State, s.Duration.Round(time.Millisecond), s.Completed, s.Failed, s.Skipped)
	switch s.State {
	case engine.StateCompleted:
		headline = st.Success.Render("✓ " + headline)
	case engine.StateCancelled:
		headline = st.Warning.Render("⊘ " + headline)
	default:
		headline = st.Error.Render("✗ " + headline)
	}
	out := "\n" + headline + "\n"

	for _, r := range s.Results {
		if r.Success {
			continue
		}
		out += fmt.Sprintf("  %s %s %s\n", st.Error.Render("✗"), r.TaskID, st.Muted.Render(r.Error))
	}
	if runErr != nil {
		out += st.Error.Render("Error: "+runErr.Error()) + "\n"
	}
	if s.State != engine.StateCompleted {
		out += st.Muted.Render(fmt.Sprintf("Checkpoint kept; continue with: ensemble resume %s", s.PlanID)) + "\n"
	}
	output.Styled(w, out+"\n")
}

func newRunReport(s *engine.Summary, rep review.Report, runErr error) RunReport {
	r := RunReport{
		PlanID:     s.PlanID,
		State:      s.State,
		Completed:  s.Completed,
		Failed:     s.Failed,
		Skipped:    s.Skipped,
		DurationMS: s.Duration.Milliseconds(),
		Results:    s.Results,
		Conflicts:  rep,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

func writeOutputs(path string, outputs []plan.AgentOutput) error {
	if outputs == nil {
		outputs = []plan.AgentOutput{}
	}
	data, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode outputs: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write outputs: %w", err)
	}
	return nil
}
