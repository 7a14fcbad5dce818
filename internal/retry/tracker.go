package retry

import (
	"slices"
	"sync"
)

// TaskState tracks bounded re-attempts for one task.
type TaskState struct {
	TaskID       string `json:"task_id"`
	Attempts     int    `json:"attempts"`
	MaxAttempts  int    `json:"max_attempts"`
	LastFeedback string `json:"last_feedback,omitempty"`
	Succeeded    bool   `json:"succeeded,omitempty"`
}

// Exhausted reports whether no further attempts are allowed.
func (s TaskState) Exhausted() bool {
	return s.Succeeded || s.Attempts >= s.MaxAttempts
}

// Tracker records re-attempt state per task.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]*TaskState
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*TaskState)}
}

// Begin returns the state for taskID, creating it with maxAttempts if it does
// not exist yet.
func (t *Tracker) Begin(taskID string, maxAttempts int) TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[taskID]
	if !ok {
		state = &TaskState{TaskID: taskID, MaxAttempts: maxAttempts}
		t.states[taskID] = state
	}
	return *state
}

// State returns the state for taskID.
func (t *Tracker) State(taskID string) (TaskState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[taskID]
	if !ok {
		return TaskState{}, false
	}
	return *state, true
}

// ShouldRetry reports whether taskID has budget left and has not succeeded.
func (t *Tracker) ShouldRetry(taskID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[taskID]
	return ok && !state.Exhausted()
}

// RecordAttempt consumes one attempt and remembers the feedback that
// prompted it.
func (t *Tracker) RecordAttempt(taskID, feedback string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[taskID]; ok {
		state.Attempts++
		state.LastFeedback = feedback
	}
}

// MarkSucceeded stops further attempts for taskID.
func (t *Tracker) MarkSucceeded(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[taskID]; ok {
		state.Succeeded = true
	}
}

// Exhausted returns the ids of tasks that used their whole budget without
// succeeding, sorted.
func (t *Tracker) Exhausted() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for id, state := range t.states {
		if !state.Succeeded && state.Attempts >= state.MaxAttempts {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Reset clears the state for taskID.
func (t *Tracker) Reset(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, taskID)
}

// Snapshot returns a copy of every task state, for persistence.
func (t *Tracker) Snapshot() map[string]TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]TaskState, len(t.states))
	for id, state := range t.states {
		out[id] = *state
	}
	return out
}

// Restore replaces all state with states.
func (t *Tracker) Restore(states map[string]TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states = make(map[string]*TaskState, len(states))
	for id, state := range states {
		t.states[id] = &state
	}
}
