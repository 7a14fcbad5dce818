// Package fallback runs a task on its assigned agent role and, when that role
// cannot serve it, on the role's configured fallbacks in order.
package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/ensemble/internal/errors"
	"github.com/Iron-Ham/ensemble/internal/knowledge"
	"github.com/Iron-Ham/ensemble/internal/logging"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/retry"
	"github.com/Iron-Ham/ensemble/internal/session"
)

// SessionFactory creates sessions for a role. *session.Manager satisfies it.
type SessionFactory interface {
	Create(ctx context.Context, role string, task plan.Task) (*session.Session, error)
}

// Result is a successful execution.
type Result struct {
	Output    plan.AgentOutput
	Role      string
	SessionID string
	// Attempts is how many roles were tried, including the one that succeeded.
	Attempts int
	// Retries is the retry count of the successful session.
	Retries int
}

// fallthroughKinds move execution on to the next role.
var fallthroughKinds = map[retry.Kind]bool{
	retry.KindModelUnavailable: true,
	retry.KindRateLimited:      true,
	retry.KindModelBusy:        true,
	retry.KindTimeout:          true,
	retry.KindNetworkError:     true,
	retry.KindTransient:        true,
	retry.KindOffTopic:         true,
}

// Coordinator executes tasks across role chains.
type Coordinator struct {
	sessions  SessionFactory
	fallbacks map[string][]string
	logger    *logging.Logger
}

// NewCoordinator creates a Coordinator. fallbacks maps a role to the roles
// tried after it.
func NewCoordinator(sessions SessionFactory, fallbacks map[string][]string, logger *logging.Logger) *Coordinator {
	return &Coordinator{sessions: sessions, fallbacks: fallbacks, logger: logger}
}

// Chain returns primary followed by its fallbacks, without duplicates.
func (c *Coordinator) Chain(primary string) []string {
	chain := []string{primary}
	seen := map[string]bool{primary: true}
	for _, role := range c.fallbacks[primary] {
		if role == "" || seen[role] {
			continue
		}
		seen[role] = true
		chain = append(chain, role)
	}
	return chain
}

// ExecuteWithFallback runs task with taskContext prepended to its prompt.
// onProgress, when non-nil, observes every session's output.
func (c *Coordinator) ExecuteWithFallback(ctx context.Context, task plan.Task, taskContext knowledge.TaskContext, primaryRole string, onProgress session.ProgressFunc) (*Result, error) {
	prompted := task
	prompted.Prompt = taskContext.Render() + task.Prompt

	chain := c.Chain(primaryRole)
	logger := c.logger.WithTask(task.ID)
	var tried []string
	var lastErr error

	for _, role := range chain {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrCanceled, err)
		}
		tried = append(tried, role)

		s, err := c.sessions.Create(ctx, role, prompted)
		if err != nil {
			if errors.Is(err, errors.ErrNoWorkerAvailable) {
				logger.Warn("no worker for role, falling back", "agent", role, "error", err.Error())
				lastErr = err
				continue
			}
			return nil, errors.NewTaskError("session creation failed", err).
				WithTaskID(task.ID).WithAgent(role)
		}
		if onProgress != nil {
			s.OnProgress(onProgress)
		}

		st := s.Run(ctx)
		switch st.State {
		case session.StateCompleted:
			return &Result{
				Output: plan.AgentOutput{
					TaskID:       task.ID,
					Agent:        role,
					Output:       st.Output,
					Declarations: plan.ParseDeclarations(st.Output),
				},
				Role:      role,
				SessionID: st.ID,
				Attempts:  len(tried),
				Retries:   st.RetryCount,
			}, nil
		case session.StateCancelled:
			return nil, fmt.Errorf("%w: task %s on %s", errors.ErrCanceled, task.ID, role)
		}

		if st.Err != nil && fallthroughKinds[st.Err.Kind] {
			logger.Warn("role failed, falling back",
				"agent", role,
				"kind", string(st.Err.Kind),
				"error", st.Err.Message)
			lastErr = st.Err
			continue
		}
		cause := fmt.Errorf("session ended in state %s", st.State)
		if st.Err != nil {
			cause = st.Err
		}
		return nil, errors.NewTaskError("agent execution failed", cause).
			WithTaskID(task.ID).WithAgent(role).WithSessionState(string(st.State))
	}

	return nil, fmt.Errorf("%w for task %s (tried %s): %w",
		errors.ErrAllRolesExhausted, task.ID, strings.Join(tried, ", "), lastErr)
}
