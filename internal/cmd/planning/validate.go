// Package planning provides CLI commands that inspect a plan without running it.
package planning

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Iron-Ham/ensemble/internal/cmd/output"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/scheduler"
	"github.com/Iron-Ham/ensemble/internal/tui/styles"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan-file>",
	Short: "Validate a plan file",
	Long: `Validate a plan file (YAML, JSON or TOML) for structural issues.

This command checks:
  - Required fields (task ids, agents)
  - Duplicate task ids
  - Dependencies on unknown tasks or on later phases
  - Dependency cycles within a phase
  - Tasks that touch the same files and so cannot run in parallel (warning)

The exit code indicates the result:
  0 - Plan is valid (may have warnings)
  1 - Plan has validation errors or could not be parsed

Examples:
  ensemble validate plan.yaml
  ensemble validate --json plan.json
  ensemble validate --watch plan.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var (
	validateJSON  bool
	validateWatch bool
)

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output validation result as JSON")
	validateCmd.Flags().BoolVarP(&validateWatch, "watch", "w", false, "Re-validate whenever the file changes")
}

// ValidationOutput represents the JSON output format for validation results.
type ValidationOutput struct {
	Valid        bool                     `json:"valid"`
	FilePath     string                   `json:"file_path"`
	PlanID       string                   `json:"plan_id,omitempty"`
	Phases       int                      `json:"phases"`
	Tasks        int                      `json:"tasks"`
	ErrorCount   int                      `json:"error_count"`
	WarningCount int                      `json:"warning_count"`
	Messages     []plan.ValidationMessage `json:"messages,omitempty"`
	ParseError   string                   `json:"parse_error,omitempty"`
}

// ValidatePlan runs every check on p, including the parallel file-overlap
// warnings the scheduler would act on.
func ValidatePlan(p *plan.Plan) *plan.ValidationResult {
	result := scheduler.Validate(p)
	if p == nil {
		return result
	}
	for _, ph := range p.Phases {
		for _, c := range scheduler.DetectConflicts(ph.Tasks) {
			if c.Kind != scheduler.ConflictFile {
				continue
			}
			result.Add(plan.ValidationMessage{
				Severity:   plan.SeverityWarning,
				Message:    fmt.Sprintf("tasks %s and %s both touch %s and will run in separate batches", c.TaskA, c.TaskB, c.Path),
				PhaseID:    ph.ID,
				RelatedIDs: []string{c.TaskA, c.TaskB},
			})
		}
	}
	return result
}

// Check loads and validates the file at path.
func Check(path string) ValidationOutput {
	out := ValidationOutput{FilePath: path}
	p, err := plan.Load(path)
	if err != nil {
		out.ParseError = err.Error()
		return out
	}
	result := ValidatePlan(p)
	out.Valid = result.IsValid
	out.PlanID = p.ID
	out.Phases = len(p.Phases)
	out.Tasks = len(p.AllTasks())
	out.ErrorCount = result.ErrorCount
	out.WarningCount = result.WarningCount
	out.Messages = result.Messages
	return out
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	w := cmd.OutOrStdout()

	if validateWatch {
		return watchValidate(output.Context(cmd), w, path)
	}

	result := Check(path)
	if err := report(w, result); err != nil {
		return err
	}
	if !result.Valid {
		return &output.SilentError{Reason: "validation failed"}
	}
	return nil
}

func report(w io.Writer, result ValidationOutput) error {
	if validateJSON {
		return output.JSON(w, result)
	}
	output.Styled(w, renderHuman(result))
	return nil
}

// renderHuman formats a validation result with status icons.
func renderHuman(r ValidationOutput) string {
	st := styles.New(styles.ThemeDefault)
	s := fmt.Sprintf("Validating: %s\n\n", r.FilePath)

	if r.ParseError != "" {
		return s + st.Error.Render("✗ "+r.ParseError) + "\n"
	}

	s += fmt.Sprintf("Plan %s: %d phase(s), %d task(s)\n\n", r.PlanID, r.Phases, r.Tasks)
	for _, m := range r.Messages {
		where := m.TaskID
		if where == "" {
			where = m.PhaseID
		}
		if where != "" {
			where = "[" + where + "] "
		}
		switch m.Severity {
		case plan.SeverityError:
			s += st.Error.Render("  ✗ ") + where + m.Message + "\n"
		default:
			s += st.Warning.Render("  ⚠ ") + where + m.Message + "\n"
		}
	}
	if len(r.Messages) > 0 {
		s += "\n"
	}

	if r.Valid {
		s += st.Success.Render(fmt.Sprintf("✓ Plan is valid (%d warning(s))", r.WarningCount)) + "\n"
	} else {
		s += st.Error.Render(fmt.Sprintf("✗ %d error(s), %d warning(s)", r.ErrorCount, r.WarningCount)) + "\n"
	}
	return s
}

// watchValidate validates once, then again on every change, until
// interrupted.
func watchValidate(ctx context.Context, w io.Writer, path string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if err := report(w, Check(path)); err != nil {
		return err
	}
	if !validateJSON {
		fmt.Fprintln(w, "\nWatching for changes (Ctrl+C to stop)...")
	}

	err := plan.Watch(ctx, path, func(_ *plan.Plan, _ error) {
		if !validateJSON {
			fmt.Fprintf(w, "\n--- %s ---\n", time.Now().Format("15:04:05"))
		}
		_ = report(w, Check(path))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
