package engine

import (
	"context"
	"time"

	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/retry"
	"github.com/Iron-Ham/ensemble/internal/store"
)

// Checkpoint is the persisted state of a run, enough to resume it.
type Checkpoint struct {
	Plan    *plan.Plan                 `json:"plan"`
	Outputs []plan.AgentOutput         `json:"outputs,omitempty"`
	Results []TaskResult               `json:"results,omitempty"`
	Retry   map[string]retry.TaskState `json:"retry,omitempty"`
	SavedAt time.Time                  `json:"saved_at"`
	Reason  string                     `json:"reason"`
}

// LoadCheckpoint reads the checkpoint saved for planID.
func LoadCheckpoint(ctx context.Context, s store.Store, planID string) (*Checkpoint, bool, error) {
	var cp Checkpoint
	found, err := s.Load(ctx, store.CheckpointKey(planID), &cp)
	if err != nil || !found {
		return nil, found, err
	}
	return &cp, true, nil
}

// checkpoint persists the current run. Failures are logged; a run never
// stops because it could not be saved.
func (e *Engine) checkpoint(ctx context.Context, reason string) {
	e.mu.Lock()
	cp := Checkpoint{
		Plan:    e.plan.Clone(),
		Outputs: append([]plan.AgentOutput(nil), e.outputs...),
		Results: e.resultsLocked(),
		SavedAt: e.now(),
		Reason:  reason,
	}
	planID := e.plan.ID
	e.mu.Unlock()
	cp.Retry = e.tracker.Snapshot()

	key := store.CheckpointKey(planID)
	if err := e.store.Save(ctx, key, cp); err != nil {
		e.logger.WithPlan(planID).Warn("failed to save checkpoint", "reason", reason, "error", err)
		return
	}
	e.logger.WithPlan(planID).Debug("checkpoint saved", "reason", reason)
	e.bus.Publish(event.NewCheckpointSavedEvent(planID, key, reason))
}

// restoreInto loads the checkpoint into e, which must be locked. Only
// completed tasks keep their status; everything else is scheduled again.
func (cp *Checkpoint) restoreInto(e *Engine) {
	e.results = make(map[string]TaskResult)
	e.order = nil
	e.outputs = append([]plan.AgentOutput(nil), cp.Outputs...)

	completed := make(map[string]bool)
	for i := range cp.Plan.Phases {
		ph := &cp.Plan.Phases[i]
		allDone := len(ph.Tasks) > 0
		for j := range ph.Tasks {
			t := &ph.Tasks[j]
			if t.Status == plan.TaskCompleted {
				completed[t.ID] = true
				continue
			}
			t.Status = plan.TaskPending
			allDone = false
		}
		if allDone {
			ph.Status = plan.PhaseCompleted
		} else {
			ph.Status = plan.PhasePending
		}
	}
	for _, r := range cp.Results {
		if completed[r.TaskID] {
			e.recordLocked(r)
		}
	}
}
