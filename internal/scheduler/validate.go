package scheduler

import (
	"fmt"

	"github.com/Iron-Ham/ensemble/internal/errors"
	"github.com/Iron-Ham/ensemble/internal/plan"
)

// Validate runs the plan's structural checks and adds an error for every
// phase whose tasks contain a dependency cycle.
func Validate(p *plan.Plan) *plan.ValidationResult {
	result := p.Validate()
	if p == nil {
		return result
	}
	for _, ph := range p.Phases {
		_, err := TopologicalSort(ph.Tasks)
		var cycleErr *errors.CycleError
		if !errors.As(err, &cycleErr) {
			continue
		}
		result.Add(plan.ValidationMessage{
			Severity:   plan.SeverityError,
			Message:    fmt.Sprintf("dependency cycle between tasks: %v", cycleErr.TaskIDs),
			PhaseID:    ph.ID,
			RelatedIDs: cycleErr.TaskIDs,
		})
	}
	return result
}
