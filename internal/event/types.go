package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "session.started", "engine.task_completed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Wildcard is the subscription pattern that matches every event.
const Wildcard = "*"

// Event type identifiers.
const (
	TypeEngineStateChanged = "engine.state_changed"
	TypeBatchStarted       = "engine.batch_started"
	TypeBatchCompleted     = "engine.batch_completed"
	TypeTaskCompleted      = "engine.task_completed"
	TypeTaskSkipped        = "engine.task_skipped"
	TypePhaseCompleted     = "engine.phase_completed"
	TypeCheckpointSaved    = "engine.checkpoint_saved"

	TypeSessionStarted   = "session.started"
	TypeSessionProgress  = "session.progress"
	TypeSessionCompleted = "session.completed"
	TypeSessionFailed    = "session.failed"
	TypeSessionCancelled = "session.cancelled"
	TypeSessionPaused    = "session.paused"
	TypeSessionResumed   = "session.resumed"
	TypeSessionRetrying  = "session.retrying"

	TypeContextUpdated   = "context.updated"
	TypeConflictDetected = "conflict.detected"
	TypeConflictResolved = "conflict.resolved"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Engine Events
// -----------------------------------------------------------------------------

// EngineStateChangedEvent is emitted on every engine state transition.
type EngineStateChangedEvent struct {
	baseEvent
	PlanID string
	From   string
	To     string
}

// NewEngineStateChangedEvent creates an EngineStateChangedEvent.
func NewEngineStateChangedEvent(planID, from, to string) EngineStateChangedEvent {
	return EngineStateChangedEvent{
		baseEvent: newBaseEvent(TypeEngineStateChanged),
		PlanID:    planID,
		From:      from,
		To:        to,
	}
}

// BatchEvent is emitted when a batch starts or finishes.
type BatchEvent struct {
	baseEvent
	PlanID           string
	PhaseID          string
	Index            int
	Total            int
	TaskIDs          []string
	EstimatedMinutes int
}

// NewBatchStartedEvent creates a BatchEvent of type engine.batch_started.
func NewBatchStartedEvent(planID, phaseID string, index, total int, taskIDs []string, estimate int) BatchEvent {
	return BatchEvent{
		baseEvent:        newBaseEvent(TypeBatchStarted),
		PlanID:           planID,
		PhaseID:          phaseID,
		Index:            index,
		Total:            total,
		TaskIDs:          taskIDs,
		EstimatedMinutes: estimate,
	}
}

// NewBatchCompletedEvent creates a BatchEvent of type engine.batch_completed.
func NewBatchCompletedEvent(planID, phaseID string, index, total int, taskIDs []string) BatchEvent {
	return BatchEvent{
		baseEvent: newBaseEvent(TypeBatchCompleted),
		PlanID:    planID,
		PhaseID:   phaseID,
		Index:     index,
		Total:     total,
		TaskIDs:   taskIDs,
	}
}

// TaskCompletedEvent is emitted when a task finishes, successfully or not.
type TaskCompletedEvent struct {
	baseEvent
	PlanID         string
	PhaseID        string
	TaskID         string
	Agent          string // Role that produced the accepted output
	Success        bool
	Error          string
	QualityRetries int
	Duration       time.Duration
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(planID, phaseID, taskID, agent string, success bool, errMsg string) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent: newBaseEvent(TypeTaskCompleted),
		PlanID:    planID,
		PhaseID:   phaseID,
		TaskID:    taskID,
		Agent:     agent,
		Success:   success,
		Error:     errMsg,
	}
}

// TaskSkippedEvent is emitted when a task becomes unreachable because an
// ancestor failed.
type TaskSkippedEvent struct {
	baseEvent
	PlanID  string
	PhaseID string
	TaskID  string
}

// NewTaskSkippedEvent creates a TaskSkippedEvent.
func NewTaskSkippedEvent(planID, phaseID, taskID string) TaskSkippedEvent {
	return TaskSkippedEvent{
		baseEvent: newBaseEvent(TypeTaskSkipped),
		PlanID:    planID,
		PhaseID:   phaseID,
		TaskID:    taskID,
	}
}

// PhaseCompletedEvent is emitted after the last batch of a phase.
type PhaseCompletedEvent struct {
	baseEvent
	PlanID    string
	PhaseID   string
	Status    string
	Completed int
	Failed    int
	Skipped   int
}

// NewPhaseCompletedEvent creates a PhaseCompletedEvent.
func NewPhaseCompletedEvent(planID, phaseID, status string, completed, failed, skipped int) PhaseCompletedEvent {
	return PhaseCompletedEvent{
		baseEvent: newBaseEvent(TypePhaseCompleted),
		PlanID:    planID,
		PhaseID:   phaseID,
		Status:    status,
		Completed: completed,
		Failed:    failed,
		Skipped:   skipped,
	}
}

// CheckpointSavedEvent is emitted after the plan is persisted.
type CheckpointSavedEvent struct {
	baseEvent
	PlanID string
	Key    string
	Reason string // "batch" or "autosave"
}

// NewCheckpointSavedEvent creates a CheckpointSavedEvent.
func NewCheckpointSavedEvent(planID, key, reason string) CheckpointSavedEvent {
	return CheckpointSavedEvent{
		baseEvent: newBaseEvent(TypeCheckpointSaved),
		PlanID:    planID,
		Key:       key,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// SessionEvent covers the session lifecycle: started, completed, failed,
// cancelled, paused, resumed and retrying.
type SessionEvent struct {
	baseEvent
	SessionID  string
	TaskID     string
	Agent      string
	State      string
	RetryCount int
	ErrorKind  string
	Error      string
}

// NewSessionEvent creates a SessionEvent of the given type.
func NewSessionEvent(eventType, sessionID, taskID, agent, state string) SessionEvent {
	return SessionEvent{
		baseEvent: newBaseEvent(eventType),
		SessionID: sessionID,
		TaskID:    taskID,
		Agent:     agent,
		State:     state,
	}
}

// SessionProgressEvent carries one streamed chunk of worker output.
type SessionProgressEvent struct {
	baseEvent
	SessionID string
	TaskID    string
	Agent     string
	Chunk     string
	Tokens    int
	Replayed  bool // Delivered from the pause buffer on resume
}

// NewSessionProgressEvent creates a SessionProgressEvent.
func NewSessionProgressEvent(sessionID, taskID, agent, chunk string, tokens int, replayed bool) SessionProgressEvent {
	return SessionProgressEvent{
		baseEvent: newBaseEvent(TypeSessionProgress),
		SessionID: sessionID,
		TaskID:    taskID,
		Agent:     agent,
		Chunk:     chunk,
		Tokens:    tokens,
		Replayed:  replayed,
	}
}

// -----------------------------------------------------------------------------
// Context and Conflict Events
// -----------------------------------------------------------------------------

// ContextUpdatedEvent is emitted when an agent's output is folded into shared context.
type ContextUpdatedEvent struct {
	baseEvent
	TaskID       string
	Agent        string
	Declarations int
}

// NewContextUpdatedEvent creates a ContextUpdatedEvent.
func NewContextUpdatedEvent(taskID, agent string, declarations int) ContextUpdatedEvent {
	return ContextUpdatedEvent{
		baseEvent:    newBaseEvent(TypeContextUpdated),
		TaskID:       taskID,
		Agent:        agent,
		Declarations: declarations,
	}
}

// ConflictEvent is emitted when a conflict is detected or resolved.
type ConflictEvent struct {
	baseEvent
	ConflictID   string
	ConflictType string
	TaskIDs      [2]string
	Severity     string
	Strategy     string // Set on conflict.resolved
	ResolvedBy   string // Set on conflict.resolved
}

// NewConflictDetectedEvent creates a ConflictEvent of type conflict.detected.
func NewConflictDetectedEvent(conflictID, conflictType string, taskIDs [2]string, severity string) ConflictEvent {
	return ConflictEvent{
		baseEvent:    newBaseEvent(TypeConflictDetected),
		ConflictID:   conflictID,
		ConflictType: conflictType,
		TaskIDs:      taskIDs,
		Severity:     severity,
	}
}

// NewConflictResolvedEvent creates a ConflictEvent of type conflict.resolved.
func NewConflictResolvedEvent(conflictID, strategy, resolvedBy string) ConflictEvent {
	return ConflictEvent{
		baseEvent:  newBaseEvent(TypeConflictResolved),
		ConflictID: conflictID,
		Strategy:   strategy,
		ResolvedBy: resolvedBy,
	}
}
