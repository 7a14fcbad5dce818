package review

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/ensemble/internal/cmd/output"
	"github.com/Iron-Ham/ensemble/internal/conflict"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/tui/styles"
)

// ConflictReport describes a conflict that still needs a decision.
type ConflictReport struct {
	ID          string            `json:"id"`
	Type        conflict.Type     `json:"type"`
	Severity    conflict.Severity `json:"severity"`
	TaskIDs     [2]string         `json:"task_ids"`
	Agents      [2]string         `json:"agents"`
	Description string            `json:"description"`
	Detail      conflict.Conflict `json:"detail"`
	Diff        string            `json:"diff,omitempty"`
	Options     []conflict.Option `json:"options"`
}

// Report is the outcome of checking a set of outputs.
type Report struct {
	Detected    int                   `json:"detected"`
	Resolutions []conflict.Resolution `json:"resolutions"`
	Pending     []ConflictReport      `json:"pending"`
}

// Analyze detects conflicts in outputs, applies every automatic resolution,
// and describes the rest with their options.
func Analyze(r *conflict.Resolver, outputs []plan.AgentOutput) Report {
	detected := r.Detect(outputs)
	pending := r.ResolveAll(detected)

	rep := Report{
		Detected:    len(detected),
		Resolutions: r.History(),
		Pending:     make([]ConflictReport, 0, len(pending)),
	}
	for _, c := range pending {
		rep.Pending = append(rep.Pending, describe(r, c))
	}
	return rep
}

func describe(r *conflict.Resolver, c conflict.Conflict) ConflictReport {
	b := c.Common()
	// A diff that cannot be built is left out; the options still apply.
	diff, _ := conflict.Diff(c)
	return ConflictReport{
		ID:          b.ID,
		Type:        c.Type(),
		Severity:    b.Severity,
		TaskIDs:     b.TaskIDs,
		Agents:      b.Agents,
		Description: b.Description,
		Detail:      c,
		Diff:        diff,
		Options:     r.UserResolutionOptions(c),
	}
}

// Render writes rep for a terminal. Diffs are included when showDiff is set.
func Render(w io.Writer, rep Report, showDiff bool) {
	st := styles.New(styles.ThemeDefault)

	if rep.Detected == 0 {
		output.Styled(w, st.Success.Render("✓ No conflicts between agent outputs")+"\n")
		return
	}

	var b strings.Builder
	b.WriteString(st.Header.Render(fmt.Sprintf("Conflicts: %d detected, %d resolved automatically, %d need a decision",
		rep.Detected, len(rep.Resolutions), len(rep.Pending))))
	b.WriteString("\n")

	if len(rep.Resolutions) > 0 {
		b.WriteString("\n" + st.Header.Render("Resolved") + "\n")
		for _, res := range rep.Resolutions {
			line := fmt.Sprintf("  %s %s %s", st.Success.Render("✓"), res.ConflictID, res.Strategy)
			if res.WinningTaskID != "" {
				line += " → " + res.WinningTaskID
			}
			if res.Note != "" {
				line += st.Muted.Render(" (" + res.Note + ")")
			}
			b.WriteString(line + "\n")
		}
	}

	if len(rep.Pending) > 0 {
		b.WriteString("\n" + st.Header.Render("Needs a decision") + "\n")
	}
	for _, c := range rep.Pending {
		b.WriteString(fmt.Sprintf("  %s [%s] %s between %s (%s) and %s (%s)\n",
			severityStyle(st, c.Severity).Render("⚠"), c.Severity, c.Type,
			c.TaskIDs[0], c.Agents[0], c.TaskIDs[1], c.Agents[1]))
		b.WriteString("    " + c.Description + "\n")
		for i, opt := range c.Options {
			b.WriteString(fmt.Sprintf("    %s %s %s\n",
				st.HelpKey.Render(fmt.Sprintf("%d.", i+1)), opt.Label, st.Muted.Render("- "+opt.Description)))
		}
		if showDiff && c.Diff != "" {
			b.WriteString(renderDiff(st, c.Diff))
		}
	}
	output.Styled(w, b.String())
}

func severityStyle(st *styles.Styles, s conflict.Severity) lipgloss.Style {
	switch s {
	case conflict.SeverityHigh:
		return st.Error
	case conflict.SeverityMedium:
		return st.Warning
	default:
		return st.Muted
	}
}

func renderDiff(st *styles.Styles, diff string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "@@"):
			b.WriteString("      " + st.Muted.Render(line))
		case strings.HasPrefix(line, "+"):
			b.WriteString("      " + st.DiffAdd.Render(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString("      " + st.DiffRemove.Render(line))
		default:
			b.WriteString("      " + st.DiffContext.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}
