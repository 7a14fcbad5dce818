// Package errors holds the sentinel and typed errors shared across ensemble.
//
// Sentinels name the structural failures the coordinator never retries
// (cycles, unknown sessions or roles, no worker for a selector) along with
// the engine's lifecycle errors. Typed errors carry the task, cycle or
// resource that failed and still match their sentinel through Is:
//
//	err := errors.NewTaskError("task failed", cause).WithTaskID("api").WithAgent("claude")
//	if errors.Is(err, errors.ErrCanceled) { ... }
//
// The standard library helpers are re-exported so callers need one import.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Plan and scheduling.
var (
	ErrDependencyCycle    = New("dependency cycle detected")
	ErrInvalidPlan        = New("plan is invalid")
	ErrCheckpointNotFound = New("checkpoint not found")
)

// Sessions and workers.
var (
	ErrSessionNotFound   = New("session not found")
	ErrAgentNotFound     = New("agent not found")
	ErrNoWorkerAvailable = New("no worker available")
	ErrManagerDisposed   = New("session manager disposed")
)

// Execution.
var (
	ErrEngineNotIdle     = New("engine is not idle")
	ErrAllRolesExhausted = New("all agent roles exhausted")
	ErrCanceled          = New("operation canceled")
)

// TaskError is the terminal failure of one task.
type TaskError struct {
	TaskID       string
	Agent        string
	Phase        string
	SessionState string

	msg   string
	cause error
}

// NewTaskError returns a TaskError wrapping cause.
func NewTaskError(msg string, cause error) *TaskError {
	return &TaskError{msg: msg, cause: cause}
}

func (e *TaskError) WithTaskID(id string) *TaskError  { e.TaskID = id; return e }
func (e *TaskError) WithAgent(role string) *TaskError { e.Agent = role; return e }
func (e *TaskError) WithPhase(id string) *TaskError   { e.Phase = id; return e }

// WithSessionState records the state the task's last session ended in.
func (e *TaskError) WithSessionState(state string) *TaskError {
	e.SessionState = state
	return e
}

func (e *TaskError) Error() string {
	var b strings.Builder
	b.WriteString("task")
	if e.TaskID != "" {
		b.WriteString(" " + e.TaskID)
	}
	var tags []string
	for _, kv := range [][2]string{{"agent", e.Agent}, {"phase", e.Phase}, {"state", e.SessionState}} {
		if kv[1] != "" {
			tags = append(tags, kv[0]+"="+kv[1])
		}
	}
	if len(tags) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(tags, " "))
	}
	b.WriteString(": " + e.msg)
	if e.cause != nil {
		b.WriteString(": " + e.cause.Error())
	}
	return b.String()
}

func (e *TaskError) Unwrap() error { return e.cause }

// CycleError lists the tasks caught in a dependency cycle.
type CycleError struct {
	TaskIDs []string
}

// NewCycleError copies ids into a CycleError.
func NewCycleError(ids []string) *CycleError {
	return &CycleError{TaskIDs: append([]string(nil), ids...)}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDependencyCycle, strings.Join(e.TaskIDs, ", "))
}

func (e *CycleError) Is(target error) bool { return target == ErrDependencyCycle }

// NotFoundError is a lookup miss that matches the sentinel it was built with.
type NotFoundError struct {
	Kind string
	ID   string

	sentinel error
}

// NewNotFoundError returns a NotFoundError for the kind and id that matches
// sentinel.
func NewNotFoundError(sentinel error, kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id, sentinel: sentinel}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return e.sentinel != nil && target == e.sentinel
}

// ValidationError reports every problem found in a plan at once. It matches
// ErrInvalidPlan.
type ValidationError struct {
	Problems []string
}

// NewValidationError returns a ValidationError for the given problems.
func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPlan, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidPlan }

// IsStructural reports whether err comes from the plan or the role setup
// rather than from a worker, so retrying the same call cannot help.
func IsStructural(err error) bool {
	for _, s := range []error{ErrDependencyCycle, ErrSessionNotFound, ErrAgentNotFound, ErrNoWorkerAvailable} {
		if Is(err, s) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether some error in the chain declares itself
// retryable through an IsRetryable method. Structural errors never are.
func IsRetryable(err error) bool {
	if err == nil || IsStructural(err) {
		return false
	}
	var r interface{ IsRetryable() bool }
	return As(err, &r) && r.IsRetryable()
}

// Wrap prefixes err with msg. It returns nil for a nil err.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
