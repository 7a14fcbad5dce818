package tui

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/ensemble/internal/engine"
	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/plan"
)

// Options configure Run.
type Options struct {
	Theme    string
	MaxTasks int
	// Input and Output default to the terminal.
	Input  io.Reader
	Output io.Writer
}

// RunFunc executes the plan. It is called once, on its own goroutine.
type RunFunc func(ctx context.Context) (*engine.Summary, error)

type runResult struct {
	summary *engine.Summary
	err     error
}

// Run shows the progress view while run executes and returns its result.
// Leaving the view early cancels the engine and still waits for run to
// return.
func Run(ctx context.Context, bus *event.Bus, ctrl Controller, p *plan.Plan, opts Options, run RunFunc) (*engine.Summary, error) {
	progOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}
	prog := tea.NewProgram(NewModel(p, ctrl, opts.Theme, opts.MaxTasks), progOpts...)

	subID := bus.SubscribeAll(func(ev event.Event) {
		prog.Send(EventMsg{Event: ev})
	})
	defer bus.Unsubscribe(subID)

	results := make(chan runResult, 1)
	go func() {
		s, err := run(ctx)
		results <- runResult{summary: s, err: err}
		prog.Send(DoneMsg{Summary: s, Err: err})
	}()

	_, progErr := prog.Run()
	if progErr != nil && !errors.Is(progErr, tea.ErrProgramKilled) {
		ctrl.Cancel()
		r := <-results
		return r.summary, errors.Join(r.err, progErr)
	}
	// The user may have left before the run finished.
	ctrl.Cancel()
	r := <-results
	return r.summary, r.err
}
