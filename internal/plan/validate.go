package plan

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/ensemble/internal/errors"
)

// ValidationSeverity represents the severity level of a validation message.
// Errors prevent execution while warnings are advisory.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationMessage is a single validation issue.
type ValidationMessage struct {
	Severity   ValidationSeverity `json:"severity"`
	Message    string             `json:"message"`
	TaskID     string             `json:"task_id,omitempty"`
	PhaseID    string             `json:"phase_id,omitempty"`
	Field      string             `json:"field,omitempty"`
	RelatedIDs []string           `json:"related_ids,omitempty"`
}

// ValidationResult collects every issue found in a plan.
type ValidationResult struct {
	IsValid      bool                `json:"is_valid"`
	Messages     []ValidationMessage `json:"messages"`
	ErrorCount   int                 `json:"error_count"`
	WarningCount int                 `json:"warning_count"`
}

// Add records a message and updates the counters.
func (r *ValidationResult) Add(msg ValidationMessage) {
	r.Messages = append(r.Messages, msg)
	switch msg.Severity {
	case SeverityError:
		r.ErrorCount++
		r.IsValid = false
	case SeverityWarning:
		r.WarningCount++
	}
}

// Err returns nil for a valid plan, otherwise a ValidationError summarizing
// the error-level messages. The result matches errors.ErrInvalidPlan.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	var parts []string
	for _, m := range r.Messages {
		if m.Severity != SeverityError {
			continue
		}
		if m.TaskID != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", m.TaskID, m.Message))
		} else {
			parts = append(parts, m.Message)
		}
	}
	return errors.NewValidationError(parts...)
}

var validTaskStatuses = map[TaskStatus]bool{
	TaskPending: true, TaskRunning: true, TaskCompleted: true, TaskFailed: true, TaskSkipped: true,
}

// Validate checks the plan's structure: ids, agents, statuses and dependency
// references. Dependencies may point at tasks in the same or an earlier phase;
// a dependency on a later phase could never be satisfied in time. Cycle
// detection lives with the scheduler.
func (p *Plan) Validate() *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if p == nil || len(p.Phases) == 0 {
		result.Add(ValidationMessage{Severity: SeverityError, Message: "plan has no phases"})
		return result
	}

	phaseOf := make(map[string]int)
	seenPhases := make(map[string]bool)
	total := 0
	for i, ph := range p.Phases {
		if seenPhases[ph.ID] {
			result.Add(ValidationMessage{
				Severity: SeverityError,
				Message:  fmt.Sprintf("duplicate phase id %q", ph.ID),
				PhaseID:  ph.ID,
				Field:    "id",
			})
		}
		seenPhases[ph.ID] = true

		for _, t := range ph.Tasks {
			total++
			if strings.TrimSpace(t.ID) == "" {
				result.Add(ValidationMessage{
					Severity: SeverityError,
					Message:  "task has no id",
					PhaseID:  ph.ID,
					Field:    "id",
				})
				continue
			}
			if _, dup := phaseOf[t.ID]; dup {
				result.Add(ValidationMessage{
					Severity: SeverityError,
					Message:  "duplicate task id",
					TaskID:   t.ID,
					PhaseID:  ph.ID,
					Field:    "id",
				})
				continue
			}
			phaseOf[t.ID] = i
		}
	}
	if total == 0 {
		result.Add(ValidationMessage{Severity: SeverityError, Message: "plan has no tasks"})
		return result
	}

	for i, ph := range p.Phases {
		for _, t := range ph.Tasks {
			if t.ID == "" {
				continue
			}
			validateTask(result, t, ph.ID, i, phaseOf)
		}
	}
	return result
}

func validateTask(result *ValidationResult, t Task, phaseID string, phaseIdx int, phaseOf map[string]int) {
	if strings.TrimSpace(t.Agent) == "" {
		result.Add(ValidationMessage{
			Severity: SeverityError,
			Message:  "task has no agent",
			TaskID:   t.ID,
			PhaseID:  phaseID,
			Field:    "agent",
		})
	}
	if strings.TrimSpace(t.Prompt) == "" {
		result.Add(ValidationMessage{
			Severity: SeverityWarning,
			Message:  "task has no prompt",
			TaskID:   t.ID,
			PhaseID:  phaseID,
			Field:    "prompt",
		})
	}
	if t.EstimatedMinutes < 0 {
		result.Add(ValidationMessage{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("negative estimate %d", t.EstimatedMinutes),
			TaskID:   t.ID,
			PhaseID:  phaseID,
			Field:    "estimated_minutes",
		})
	}
	if !validTaskStatuses[t.Status] {
		result.Add(ValidationMessage{
			Severity: SeverityError,
			Message:  fmt.Sprintf("unknown status %q", t.Status),
			TaskID:   t.ID,
			PhaseID:  phaseID,
			Field:    "status",
		})
	}

	for _, dep := range t.DependsOn {
		if dep == t.ID {
			result.Add(ValidationMessage{
				Severity:   SeverityError,
				Message:    "task depends on itself",
				TaskID:     t.ID,
				PhaseID:    phaseID,
				Field:      "depends_on",
				RelatedIDs: []string{dep},
			})
			continue
		}
		depPhase, ok := phaseOf[dep]
		switch {
		case !ok:
			result.Add(ValidationMessage{
				Severity:   SeverityError,
				Message:    fmt.Sprintf("depends on unknown task %q", dep),
				TaskID:     t.ID,
				PhaseID:    phaseID,
				Field:      "depends_on",
				RelatedIDs: []string{dep},
			})
		case depPhase > phaseIdx:
			result.Add(ValidationMessage{
				Severity:   SeverityError,
				Message:    fmt.Sprintf("depends on %q from a later phase", dep),
				TaskID:     t.ID,
				PhaseID:    phaseID,
				Field:      "depends_on",
				RelatedIDs: []string{dep},
			})
		}
	}
}
