// Package engine drives a plan to completion.
//
// Phases run in order and the batches inside a phase run one after another.
// The tasks of a batch fan out concurrently; every plan mutation happens after
// the batch barrier, so a batch observes the statuses its predecessors left.
// The plan is checkpointed after every batch and, optionally, on a timer.
package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/ensemble/internal/errors"
	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/extract"
	"github.com/Iron-Ham/ensemble/internal/fallback"
	"github.com/Iron-Ham/ensemble/internal/knowledge"
	"github.com/Iron-Ham/ensemble/internal/logging"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/quality"
	"github.com/Iron-Ham/ensemble/internal/retry"
	"github.com/Iron-Ham/ensemble/internal/scheduler"
	"github.com/Iron-Ham/ensemble/internal/session"
	"github.com/Iron-Ham/ensemble/internal/store"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether a run has ended in this state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Executor runs one task, falling back across agent roles.
type Executor interface {
	ExecuteWithFallback(ctx context.Context, task plan.Task, taskContext knowledge.TaskContext, primaryRole string, onProgress session.ProgressFunc) (*fallback.Result, error)
}

// ContextProvider supplies shared context to tasks and absorbs their outputs.
type ContextProvider interface {
	Prepare(p *plan.Plan)
	ContextForTask(task plan.Task) knowledge.TaskContext
	UpdateFromAgentOutput(out plan.AgentOutput)
}

// QualityGate checks an output before it is accepted.
type QualityGate interface {
	Check(output string, taskContext knowledge.TaskContext) quality.Report
}

// FileWriter materializes files described in an output.
type FileWriter interface {
	ExtractAndWrite(ctx context.Context, root, text string) (extract.Result, error)
}

// ProgressFunc receives streamed output for a task.
type ProgressFunc func(taskID, chunk string)

// Config controls execution behavior.
type Config struct {
	// ContinueOnFailure keeps executing after a task fails. Dependents of the
	// failed task are skipped.
	ContinueOnFailure bool
	// QualityRetries bounds re-executions triggered by the quality gate.
	QualityRetries int
	// AutosaveInterval checkpoints on a timer in addition to every batch.
	// Zero disables the timer.
	AutosaveInterval time.Duration
	// OutputRoot is where extracted files are written. Empty disables writing.
	OutputRoot string
	// MaxParallel caps concurrent tasks within a batch. Zero is unlimited.
	MaxParallel int
}

// Deps are the collaborators of an Engine. Executor is required; the rest
// have defaults.
type Deps struct {
	Executor   Executor
	Context    ContextProvider
	Gate       QualityGate
	Writer     FileWriter
	Store      store.Store
	Bus        *event.Bus
	Logger     *logging.Logger
	OnProgress ProgressFunc
	Now        func() time.Time
}

// TaskResult records how one task ended.
type TaskResult struct {
	TaskID          string        `json:"task_id"`
	PhaseID         string        `json:"phase_id"`
	Agent           string        `json:"agent,omitempty"`
	SessionID       string        `json:"session_id,omitempty"`
	Success         bool          `json:"success"`
	Output          string        `json:"output,omitempty"`
	Error           string        `json:"error,omitempty"`
	Attempts        int           `json:"attempts,omitempty"`
	QualityAttempts int           `json:"quality_attempts,omitempty"`
	Files           []string      `json:"files,omitempty"`
	Duration        time.Duration `json:"duration"`
	Panicked        bool          `json:"panicked,omitempty"`
}

// Summary describes a finished run.
type Summary struct {
	PlanID    string
	State     State
	Completed int
	Failed    int
	Skipped   int
	Results   []TaskResult
	Duration  time.Duration
	Plan      *plan.Plan
}

// outcome is a TaskResult plus what the barrier needs to apply it.
type outcome struct {
	result    TaskResult
	output    *plan.AgentOutput
	err       error
	cancelled bool
}

// Engine executes plans. One plan runs at a time.
type Engine struct {
	cfg        Config
	executor   Executor
	context    ContextProvider
	gate       QualityGate
	writer     FileWriter
	store      store.Store
	bus        *event.Bus
	logger     *logging.Logger
	onProgress ProgressFunc
	now        func() time.Time
	tracker    *retry.Tracker

	mu       sync.Mutex
	state    State
	plan     *plan.Plan
	results  map[string]TaskResult
	order    []string
	outputs  []plan.AgentOutput
	cancel   context.CancelFunc
	resumeCh chan struct{}
}

// New creates an idle Engine.
func New(cfg Config, deps Deps) *Engine {
	e := &Engine{
		cfg:        cfg,
		executor:   deps.Executor,
		context:    deps.Context,
		gate:       deps.Gate,
		writer:     deps.Writer,
		store:      deps.Store,
		bus:        deps.Bus,
		logger:     deps.Logger,
		onProgress: deps.OnProgress,
		now:        deps.Now,
		tracker:    retry.NewTracker(),
		state:      StateIdle,
		results:    make(map[string]TaskResult),
	}
	if e.context == nil {
		e.context = knowledge.NewCoordinator(e.bus, e.logger)
	}
	if e.gate == nil {
		e.gate = quality.NewGate()
	}
	if e.store == nil {
		e.store = store.NewMemoryStore()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Plan returns a copy of the plan being executed, or nil before the first run.
func (e *Engine) Plan() *plan.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.plan == nil {
		return nil
	}
	return e.plan.Clone()
}

// Results returns a copy of every task result in completion order.
func (e *Engine) Results() []TaskResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resultsLocked()
}

func (e *Engine) resultsLocked() []TaskResult {
	out := make([]TaskResult, 0, len(e.order))
	for _, id := range e.order {
		r := e.results[id]
		r.Files = slices.Clone(r.Files)
		out = append(out, r)
	}
	return out
}

// Outputs returns the accepted agent outputs in completion order.
func (e *Engine) Outputs() []plan.AgentOutput {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.outputs)
}

// Execute runs p to completion. The caller's plan is not modified; Plan and
// the returned Summary carry the final statuses.
func (e *Engine) Execute(ctx context.Context, p *plan.Plan) (*Summary, error) {
	if p == nil {
		return nil, errors.Wrap(errors.ErrInvalidPlan, "nil plan")
	}
	p = p.Clone()
	p.Normalize()
	if err := scheduler.Validate(p).Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return nil, errors.ErrEngineNotIdle
	}
	e.plan = p
	e.results = make(map[string]TaskResult)
	e.order = nil
	e.outputs = nil
	e.tracker = retry.NewTracker()
	ev := e.transitionLocked(StateRunning)
	e.mu.Unlock()
	e.publish(ev)

	e.context.Prepare(e.plan)
	return e.run(ctx)
}

// Resume continues the plan saved in the checkpoint for planID. Completed
// tasks keep their outputs and are never re-run; every other task returns to
// pending.
func (e *Engine) Resume(ctx context.Context, planID string) (*Summary, error) {
	cp, found, err := LoadCheckpoint(ctx, e.store, planID)
	if err != nil {
		return nil, errors.Wrapf(err, "load checkpoint for plan %s", planID)
	}
	if !found || cp.Plan == nil {
		return nil, errors.NewNotFoundError(errors.ErrCheckpointNotFound, "checkpoint", planID)
	}

	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return nil, errors.ErrEngineNotIdle
	}
	e.plan = cp.Plan
	cp.restoreInto(e)
	e.tracker = retry.NewTracker()
	e.tracker.Restore(cp.Retry)
	ev := e.transitionLocked(StateRunning)
	e.mu.Unlock()
	e.publish(ev)

	e.context.Prepare(e.plan)
	for _, out := range cp.Outputs {
		e.context.UpdateFromAgentOutput(out)
	}
	e.logger.WithPlan(planID).Info("resuming plan from checkpoint",
		"saved_at", cp.SavedAt, "completed", len(cp.Outputs))
	return e.run(ctx)
}

// Pause stops the engine before its next batch. Tasks already running finish.
func (e *Engine) Pause() bool {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return false
	}
	e.resumeCh = make(chan struct{})
	ev := e.transitionLocked(StatePaused)
	e.mu.Unlock()
	e.publish(ev)
	return true
}

// ResumeExecution releases a paused engine.
func (e *Engine) ResumeExecution() bool {
	e.mu.Lock()
	if e.state != StatePaused {
		e.mu.Unlock()
		return false
	}
	e.releaseLocked()
	ev := e.transitionLocked(StateRunning)
	e.mu.Unlock()
	e.publish(ev)
	return true
}

// Cancel stops the run. Sessions in flight are cancelled through the run
// context and a paused engine is released so it can observe the cancellation.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil || e.state.IsTerminal() || e.state == StateIdle {
		return false
	}
	e.cancel()
	e.releaseLocked()
	return true
}

// Reset returns a finished engine to idle so it can run another plan.
func (e *Engine) Reset() bool {
	e.mu.Lock()
	if !e.state.IsTerminal() {
		e.mu.Unlock()
		return false
	}
	ev := e.transitionLocked(StateIdle)
	e.mu.Unlock()
	e.publish(ev)
	return true
}

func (e *Engine) releaseLocked() {
	if e.resumeCh != nil {
		close(e.resumeCh)
		e.resumeCh = nil
	}
}

// transitionLocked moves to state to and returns the event to publish once
// the lock is released, or nil when nothing changed.
func (e *Engine) transitionLocked(to State) event.Event {
	from := e.state
	if from == to {
		return nil
	}
	e.state = to
	planID := ""
	if e.plan != nil {
		planID = e.plan.ID
	}
	return event.NewEngineStateChangedEvent(planID, string(from), string(to))
}

func (e *Engine) publish(events ...event.Event) {
	for _, ev := range events {
		if ev != nil {
			e.bus.Publish(ev)
		}
	}
}

// waitIfPaused blocks while the engine is paused.
func (e *Engine) waitIfPaused(ctx context.Context) error {
	e.mu.Lock()
	ch := e.resumeCh
	e.mu.Unlock()
	if ch == nil {
		return ctx.Err()
	}
	select {
	case <-ch:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run(parent context.Context) (*Summary, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	start := e.now()
	e.mu.Lock()
	e.cancel = cancel
	planID := e.plan.ID
	e.mu.Unlock()

	log := e.logger.WithPlan(planID)
	log.Info("executing plan", "phases", len(e.plan.Phases))

	stopAutosave := e.startAutosave(ctx)
	err := e.runPhases(ctx, log)
	stopAutosave()

	if err != nil && ctx.Err() != nil {
		e.mu.Lock()
		for _, t := range e.plan.AllTasks() {
			if t.Status == plan.TaskRunning {
				e.plan.Task(t.ID).Status = plan.TaskPending
			}
		}
		e.mu.Unlock()
		summary, _ := e.finish(parent, start, StateCancelled, nil)
		return summary, fmt.Errorf("%w: %w", errors.ErrCanceled, err)
	}

	state := StateCompleted
	if err != nil || e.plan.Counts()[plan.TaskFailed] > 0 {
		state = StateFailed
	}
	return e.finish(parent, start, state, err)
}

// finish settles the terminal state, persists or clears the checkpoint and
// builds the summary. runErr is the fatal task failure, if any.
func (e *Engine) finish(parent context.Context, start time.Time, state State, runErr error) (*Summary, error) {
	e.mu.Lock()
	counts := e.plan.Counts()
	summary := &Summary{
		PlanID:    e.plan.ID,
		State:     state,
		Completed: counts[plan.TaskCompleted],
		Failed:    counts[plan.TaskFailed],
		Skipped:   counts[plan.TaskSkipped],
		Results:   e.resultsLocked(),
		Duration:  e.now().Sub(start),
		Plan:      e.plan.Clone(),
	}
	e.cancel = nil
	e.releaseLocked()
	ev := e.transitionLocked(state)
	e.mu.Unlock()

	storeCtx := context.WithoutCancel(parent)
	if state == StateCompleted {
		if err := e.store.Delete(storeCtx, store.CheckpointKey(summary.PlanID)); err != nil {
			e.logger.WithPlan(summary.PlanID).Warn("failed to delete checkpoint", "error", err)
		}
	} else {
		e.checkpoint(storeCtx, string(state))
	}
	e.publish(ev)

	e.logger.WithPlan(summary.PlanID).Info("plan execution finished",
		"state", summary.State,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration", summary.Duration)
	return summary, runErr
}

func (e *Engine) runPhases(ctx context.Context, log *logging.Logger) error {
	for pi := range e.plan.Phases {
		e.mu.Lock()
		phase := &e.plan.Phases[pi]
		if phase.Status == plan.PhaseCompleted {
			e.mu.Unlock()
			continue
		}
		phase.Status = plan.PhaseRunning
		var pending []plan.Task
		for _, t := range phase.Tasks {
			if t.Status == plan.TaskPending {
				pending = append(pending, t)
			}
		}
		phaseID := phase.ID
		e.mu.Unlock()

		phaseLog := log.WithPhase(phaseID)
		batches, err := scheduler.BuildBatches(pending)
		if err != nil {
			return errors.Wrapf(err, "schedule phase %s", phaseID)
		}
		phaseLog.Info("phase started", "tasks", len(pending), "batches", len(batches))

		for _, b := range batches {
			if err := e.waitIfPaused(ctx); err != nil {
				return err
			}
			if err := e.runBatch(ctx, phaseID, b, len(batches), phaseLog.WithBatch(b.Index)); err != nil {
				if ctx.Err() == nil {
					e.completePhase(pi)
				}
				return err
			}
		}
		e.completePhase(pi)
	}
	return nil
}

// completePhase settles a phase status and emits its event. A phase with any
// failed task is failed.
func (e *Engine) completePhase(pi int) {
	e.mu.Lock()
	phase := &e.plan.Phases[pi]
	var completed, failed, skipped int
	for _, t := range phase.Tasks {
		switch t.Status {
		case plan.TaskCompleted:
			completed++
		case plan.TaskFailed:
			failed++
		case plan.TaskSkipped:
			skipped++
		}
	}
	phase.Status = plan.PhaseCompleted
	if failed > 0 {
		phase.Status = plan.PhaseFailed
	}
	planID, phaseID, status := e.plan.ID, phase.ID, phase.Status
	e.mu.Unlock()

	e.bus.Publish(event.NewPhaseCompletedEvent(planID, phaseID, string(status), completed, failed, skipped))
}

// runBatch runs the members of b that are still pending. Batches are built
// when the phase starts, so earlier batches may have skipped some members.
func (e *Engine) runBatch(ctx context.Context, phaseID string, b scheduler.Batch, total int, log *logging.Logger) error {
	e.mu.Lock()
	planID := e.plan.ID
	var runnable []plan.Task
	for _, bt := range b.Tasks {
		t := e.plan.Task(bt.ID)
		if t == nil || t.Status != plan.TaskPending {
			continue
		}
		t.Status = plan.TaskRunning
		runnable = append(runnable, *t)
	}
	e.mu.Unlock()
	if len(runnable) == 0 {
		log.Info("batch has no runnable tasks")
		return nil
	}

	taskIDs := make([]string, len(runnable))
	for i, t := range runnable {
		taskIDs[i] = t.ID
	}
	e.bus.Publish(event.NewBatchStartedEvent(planID, phaseID, b.Index, total, taskIDs, b.EstimatedMinutes))
	log.Info("batch started", "tasks", taskIDs)

	type indexed struct {
		idx int
		out outcome
	}
	p := pool.NewWithResults[indexed]()
	if e.cfg.MaxParallel > 0 {
		p = p.WithMaxGoroutines(e.cfg.MaxParallel)
	}
	for i, t := range runnable {
		task := t
		p.Go(func() indexed {
			return indexed{idx: i, out: e.safeRunTask(ctx, phaseID, task, log.WithTask(task.ID))}
		})
	}
	collected := p.Wait()
	slices.SortFunc(collected, func(a, b indexed) int { return a.idx - b.idx })

	var fatal error
	e.mu.Lock()
	for _, c := range collected {
		o := c.out
		t := e.plan.Task(o.result.TaskID)
		if t == nil {
			continue
		}
		switch {
		case o.cancelled:
			t.Status = plan.TaskPending
			continue
		case o.result.Success:
			t.Status = plan.TaskCompleted
			if o.output != nil {
				e.outputs = append(e.outputs, *o.output)
			}
		default:
			t.Status = plan.TaskFailed
			if fatal == nil && !e.cfg.ContinueOnFailure {
				fatal = errors.NewTaskError("task failed", o.err).
					WithTaskID(t.ID).
					WithAgent(t.Agent).
					WithSessionState(lastSessionState(o.err)).
					WithPhase(phaseID)
			}
		}
		e.recordLocked(o.result)
	}

	var skipped []plan.Task
	for _, id := range scheduler.Unreachable(e.plan.AllTasks()) {
		t := e.plan.Task(id)
		t.Status = plan.TaskSkipped
		skipped = append(skipped, *t)
	}
	e.mu.Unlock()

	for _, c := range collected {
		if c.out.cancelled {
			continue
		}
		r := c.out.result
		e.bus.Publish(event.NewTaskCompletedEvent(planID, phaseID, r.TaskID, r.Agent, r.Success, r.Error))
	}
	for _, t := range skipped {
		log.Info("task skipped, a dependency failed", "task_id", t.ID)
		e.bus.Publish(event.NewTaskSkippedEvent(planID, phaseOf(e.plan, t.ID), t.ID))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	e.checkpoint(ctx, "batch")
	e.bus.Publish(event.NewBatchCompletedEvent(planID, phaseID, b.Index, total, taskIDs))
	log.Info("batch completed")
	return fatal
}

// lastSessionState is the state the task's final session ended in, as
// reported by the executor, or failed when it is unknown.
func lastSessionState(err error) string {
	var te *errors.TaskError
	if errors.As(err, &te) && te.SessionState != "" {
		return te.SessionState
	}
	return string(session.StateFailed)
}

func (e *Engine) recordLocked(r TaskResult) {
	if _, seen := e.results[r.TaskID]; !seen {
		e.order = append(e.order, r.TaskID)
	}
	e.results[r.TaskID] = r
}

// safeRunTask runs a task and converts a panic into a failed result.
func (e *Engine) safeRunTask(ctx context.Context, phaseID string, task plan.Task, log *logging.Logger) outcome {
	var o outcome
	var catcher panics.Catcher
	catcher.Try(func() { o = e.runTask(ctx, phaseID, task, log) })
	if r := catcher.Recovered(); r != nil {
		log.Error("task panicked", "panic", r.Value, "stack", string(r.Stack))
		err := r.AsError()
		o = outcome{
			result: TaskResult{
				TaskID:   task.ID,
				PhaseID:  phaseID,
				Agent:    task.Agent,
				Error:    fmt.Sprintf("panic: %v", r.Value),
				Panicked: true,
			},
			err: err,
		}
	}
	return o
}

func (e *Engine) runTask(ctx context.Context, phaseID string, task plan.Task, log *logging.Logger) outcome {
	start := e.now()
	result := TaskResult{TaskID: task.ID, PhaseID: phaseID, Agent: task.Agent}
	done := func(o outcome) outcome {
		o.result.Duration = e.now().Sub(start)
		return o
	}

	tc := e.context.ContextForTask(task)
	var onProgress session.ProgressFunc
	if e.onProgress != nil {
		onProgress = func(chunk string, _ int, _ bool) { e.onProgress(task.ID, chunk) }
	}

	log.Info("task started", "dependencies", len(tc.Dependencies), "declarations", len(tc.Declarations))
	res, err := e.executor.ExecuteWithFallback(ctx, task, tc, task.Agent, onProgress)
	if err != nil {
		if errors.Is(err, errors.ErrCanceled) || ctx.Err() != nil {
			return done(outcome{result: result, err: err, cancelled: true})
		}
		log.Error("task failed", "error", err)
		result.Error = err.Error()
		return done(outcome{result: result, err: err})
	}

	res, qualityAttempts := e.enforceQuality(ctx, task, tc, res, onProgress, log)
	out := res.Output
	e.context.UpdateFromAgentOutput(out)

	result.Success = true
	result.Agent = res.Role
	result.SessionID = res.SessionID
	result.Output = out.Output
	result.Attempts = res.Attempts
	result.QualityAttempts = qualityAttempts

	if e.writer != nil && e.cfg.OutputRoot != "" {
		written, err := e.writer.ExtractAndWrite(ctx, e.cfg.OutputRoot, out.Output)
		if err != nil {
			log.Warn("failed to write extracted files", "error", err)
		}
		for _, werr := range written.Errors {
			log.Warn("failed to write extracted file", "error", werr)
		}
		result.Files = written.FilesWritten
	}

	log.Info("task completed", "agent", res.Role, "quality_attempts", qualityAttempts, "files", len(result.Files))
	return done(outcome{result: result, output: &out})
}

// enforceQuality re-executes a task with gate feedback while the output has
// errors and budget remains. A failed re-execution keeps the previous output.
func (e *Engine) enforceQuality(ctx context.Context, task plan.Task, tc knowledge.TaskContext, res *fallback.Result, onProgress session.ProgressFunc, log *logging.Logger) (*fallback.Result, int) {
	e.tracker.Begin(task.ID, e.cfg.QualityRetries)
	report := e.gate.Check(res.Output.Output, tc)
	attempts := 0
	for !report.Passed && report.ErrorCount > 0 && e.tracker.ShouldRetry(task.ID) {
		e.tracker.RecordAttempt(task.ID, report.Feedback)
		attempts++
		log.Warn("output failed quality gate, retrying", "errors", report.ErrorCount, "attempt", attempts)

		retryTask := task
		retryTask.Prompt = task.Prompt + "\n\n" + report.Feedback
		next, err := e.executor.ExecuteWithFallback(ctx, retryTask, tc, task.Agent, onProgress)
		if err != nil {
			log.Warn("quality retry failed, keeping previous output", "error", err)
			break
		}
		res = next
		report = e.gate.Check(res.Output.Output, tc)
	}
	if report.Passed {
		e.tracker.MarkSucceeded(task.ID)
	} else {
		log.Warn("accepting output with quality errors", "errors", report.ErrorCount)
	}
	return res, attempts
}

func (e *Engine) startAutosave(ctx context.Context) func() {
	if e.cfg.AutosaveInterval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(e.cfg.AutosaveInterval)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ticker.C:
				e.checkpoint(ctx, "autosave")
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
		wg.Wait()
	}
}

func phaseOf(p *plan.Plan, taskID string) string {
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			if t.ID == taskID {
				return ph.ID
			}
		}
	}
	return ""
}
