// Package session runs one task against one worker, absorbing retryable
// failures, and tracks every such run for the lifetime of the process.
//
// A Session moves pending → running → completed | failed | cancelled, with
// running ⇄ paused as a side transition. Pausing never stops data capture:
// chunks keep accumulating into the output while paused, and only their
// progress notifications are held back in a queue. Resuming flushes the queue
// in arrival order before new chunks are announced.
package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/ensemble/internal/errors"
	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/logging"
	"github.com/Iron-Ham/ensemble/internal/retry"
	"github.com/Iron-Ham/ensemble/internal/worker"
)

// State is the lifecycle state of a session.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// flowState governs progress emission.
type flowState int

const (
	flowRunning   flowState = iota // queue drained as chunks arrive
	flowBuffering                  // paused: chunks queue up
	flowFlushing                   // resumed: queue draining, new chunks join the tail
)

// Config tunes how a session runs.
type Config struct {
	MaxRetries int
	Backoff    retry.Backoff
	Options    worker.Options
	// Sleep waits between attempts. It must return early with an error when
	// ctx is done. Defaults to a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Status is an immutable snapshot of a session.
type Status struct {
	ID         string
	Agent      string
	TaskID     string
	WorkerID   string
	State      State
	Output     string
	Tokens     int
	RetryCount int
	// DiscardedTokens counts output dropped from failed attempts.
	DiscardedTokens int
	Err             *retry.Error
	CreatedAt       time.Time
	StartedAt       time.Time
	CompletedAt     time.Time
}

// ProgressFunc observes each output chunk as it is announced. replayed is
// true for chunks held back during a pause.
type ProgressFunc func(chunk string, tokens int, replayed bool)

type progress struct {
	chunk  string
	tokens int
}

// Session is one task's attempt sequence against one worker. All fields are
// owned by the session and change only through its methods.
type Session struct {
	id     string
	agent  string
	taskID string
	prompt string
	worker worker.Worker
	cfg    Config
	bus    *event.Bus
	logger *logging.Logger

	mu          sync.Mutex
	state       State
	output      strings.Builder
	tokens      int
	discarded   int
	retryCount  int
	err         *retry.Error
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	onProgress  ProgressFunc

	flow  flowState
	queue []progress
	// emitMu serializes queue draining so announcements keep arrival order.
	emitMu sync.Mutex

	cancelCh   chan struct{}
	cancelOnce sync.Once
}

func newSession(id, agent, taskID, prompt string, w worker.Worker, cfg Config, bus *event.Bus, logger *logging.Logger) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		id:        id,
		agent:     agent,
		taskID:    taskID,
		prompt:    prompt,
		worker:    w,
		cfg:       cfg,
		bus:       bus,
		logger:    logger.WithSession(id).WithTask(taskID).WithAgent(agent),
		state:     StatePending,
		createdAt: cfg.Now(),
		cancelCh:  make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Agent returns the role the session runs for.
func (s *Session) Agent() string { return s.agent }

// TaskID returns the task the session executes.
func (s *Session) TaskID() string { return s.taskID }

// OnProgress sets the per-session progress observer. Set it before Run.
func (s *Session) OnProgress(fn ProgressFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onProgress = fn
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	return Status{
		ID:              s.id,
		Agent:           s.agent,
		TaskID:          s.taskID,
		WorkerID:        s.worker.ID(),
		State:           s.state,
		Output:          s.output.String(),
		Tokens:          s.tokens,
		RetryCount:      s.retryCount,
		DiscardedTokens: s.discarded,
		Err:             s.err,
		CreatedAt:       s.createdAt,
		StartedAt:       s.startedAt,
		CompletedAt:     s.completedAt,
	}
}

// Run executes up to MaxRetries+1 attempts and returns the final status.
// A session runs at most once; later calls return the current status.
func (s *Session) Run(ctx context.Context) Status {
	s.mu.Lock()
	if s.state != StatePending {
		st := s.statusLocked()
		s.mu.Unlock()
		return st
	}
	s.state = StateRunning
	s.startedAt = s.cfg.Now()
	s.mu.Unlock()
	s.publish(event.TypeSessionStarted, nil)
	s.logger.Info("session started", "worker", s.worker.ID())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.cancelCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for attempt := 0; ; attempt++ {
		if s.cancelled() {
			return s.Status()
		}
		if ctx.Err() != nil {
			return s.finish(StateCancelled, retry.Classify(ctx.Err()))
		}

		err := s.attempt(ctx)
		if err == nil {
			return s.finish(StateCompleted, nil)
		}
		if s.cancelled() {
			return s.Status()
		}

		classified := retry.Classify(err)
		if classified.Kind == retry.KindCancelled {
			return s.finish(StateCancelled, classified)
		}
		if !errors.IsRetryable(classified) || attempt >= s.cfg.MaxRetries {
			return s.finish(StateFailed, classified)
		}

		s.mu.Lock()
		s.retryCount++
		retries := s.retryCount
		s.mu.Unlock()

		delay := s.cfg.Backoff.Delay(attempt)
		s.logger.Warn("attempt failed, retrying",
			"attempt", attempt+1,
			"kind", string(classified.Kind),
			"delay", delay.String(),
			"error", classified.Message)
		s.publishRetry(retries, classified)

		if err := s.cfg.Sleep(ctx, delay); err != nil {
			if s.cancelled() {
				return s.Status()
			}
			return s.finish(StateCancelled, retry.Classify(err))
		}

		s.mu.Lock()
		s.discarded += s.tokens
		s.output.Reset()
		s.tokens = 0
		s.mu.Unlock()
	}
}

// attempt sends the prompt once and consumes the whole stream.
func (s *Session) attempt(ctx context.Context) error {
	stream, err := s.worker.SendRequest(ctx, []worker.Message{worker.UserMessage(s.prompt)}, s.cfg.Options)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if s.cancelled() {
			return errors.ErrCanceled
		}
		s.capture(chunk)
	}
}

// capture appends a chunk to the output and queues its announcement.
func (s *Session) capture(chunk string) {
	s.mu.Lock()
	s.output.WriteString(chunk)
	s.tokens++
	s.queue = append(s.queue, progress{chunk: chunk, tokens: s.tokens})
	s.mu.Unlock()
	s.drain()
}

// drain announces queued chunks in order unless the flow is buffering.
func (s *Session) drain() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	for {
		s.mu.Lock()
		if s.flow == flowBuffering {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.flow = flowRunning
			s.mu.Unlock()
			return
		}
		p := s.queue[0]
		s.queue = s.queue[1:]
		replayed := s.flow == flowFlushing
		onProgress := s.onProgress
		s.mu.Unlock()

		if onProgress != nil {
			onProgress(p.chunk, p.tokens, replayed)
		}
		s.bus.Publish(event.NewSessionProgressEvent(s.id, s.taskID, s.agent, p.chunk, p.tokens, replayed))
	}
}

// Pause holds back progress announcements. It only has an effect while
// running and returns whether it did.
func (s *Session) Pause() bool {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	s.state = StatePaused
	s.flow = flowBuffering
	s.mu.Unlock()

	s.logger.Info("session paused")
	s.publish(event.TypeSessionPaused, nil)
	return true
}

// Resume re-enables announcements and replays the chunks captured while
// paused. It only has an effect while paused and returns whether it did.
func (s *Session) Resume() bool {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return false
	}
	s.state = StateRunning
	s.flow = flowFlushing
	s.mu.Unlock()

	s.logger.Info("session resumed")
	s.publish(event.TypeSessionResumed, nil)
	s.drain()
	return true
}

// Cancel moves the session to cancelled immediately and signals any in-flight
// attempt to stop. It returns false if the session was already terminal.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	s.state = StateCancelled
	s.err = retry.Cancelled()
	s.completedAt = s.cfg.Now()
	s.flowTerminalLocked()
	s.mu.Unlock()

	s.cancelOnce.Do(func() { close(s.cancelCh) })
	s.drain()
	s.logger.Info("session cancelled")
	s.publish(event.TypeSessionCancelled, nil)
	return true
}

func (s *Session) cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

// finish records a terminal state unless one was already reached.
func (s *Session) finish(state State, err *retry.Error) Status {
	s.mu.Lock()
	if s.state.IsTerminal() {
		st := s.statusLocked()
		s.mu.Unlock()
		return st
	}
	s.state = state
	s.err = err
	s.completedAt = s.cfg.Now()
	s.flowTerminalLocked()
	st := s.statusLocked()
	s.mu.Unlock()

	// Held-back chunks are announced before the terminal event.
	s.drain()

	switch state {
	case StateCompleted:
		s.logger.Info("session completed", "tokens", st.Tokens, "retries", st.RetryCount)
		s.publish(event.TypeSessionCompleted, nil)
	case StateCancelled:
		s.cancelOnce.Do(func() { close(s.cancelCh) })
		s.logger.Info("session cancelled")
		s.publish(event.TypeSessionCancelled, err)
	default:
		s.logger.Error("session failed", "kind", string(err.Kind), "error", err.Message, "retries", st.RetryCount)
		s.publish(event.TypeSessionFailed, err)
	}
	return st
}

// flowTerminalLocked switches a buffering flow to flushing so a final drain
// delivers everything held back.
func (s *Session) flowTerminalLocked() {
	if s.flow == flowBuffering {
		s.flow = flowFlushing
	}
}

func (s *Session) publish(eventType string, err *retry.Error) {
	s.mu.Lock()
	ev := event.NewSessionEvent(eventType, s.id, s.taskID, s.agent, string(s.state))
	ev.RetryCount = s.retryCount
	s.mu.Unlock()
	if err != nil {
		ev.ErrorKind = string(err.Kind)
		ev.Error = err.Message
	}
	s.bus.Publish(ev)
}

func (s *Session) publishRetry(retries int, err *retry.Error) {
	ev := event.NewSessionEvent(event.TypeSessionRetrying, s.id, s.taskID, s.agent, string(StateRunning))
	ev.RetryCount = retries
	ev.ErrorKind = string(err.Kind)
	ev.Error = err.Message
	s.bus.Publish(ev)
}
