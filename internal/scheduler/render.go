package scheduler

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/ensemble/internal/plan"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	idStyle     = lipgloss.NewStyle().Bold(true)

	statusStyles = map[plan.TaskStatus]lipgloss.Style{
		plan.TaskPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		plan.TaskRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
		plan.TaskCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		plan.TaskFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")),
		plan.TaskSkipped:   lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	}
)

// StatusIcon returns the single-character marker for a task status.
func StatusIcon(s plan.TaskStatus) string {
	switch s {
	case plan.TaskRunning:
		return "⟳"
	case plan.TaskCompleted:
		return "✓"
	case plan.TaskFailed:
		return "✗"
	case plan.TaskSkipped:
		return "⊘"
	default:
		return "○"
	}
}

func styledStatus(s plan.TaskStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		style = statusStyles[plan.TaskPending]
	}
	return style.Render(StatusIcon(s))
}

// RenderBatches renders one block per batch listing its tasks.
func RenderBatches(batches []Batch) string {
	var b strings.Builder
	for i, batch := range batches {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(headerStyle.Render(fmt.Sprintf("Batch %d", batch.Index+1)))
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d task(s), ~%d min", len(batch.Tasks), batch.EstimatedMinutes)))
		b.WriteString("\n")
		for _, t := range batch.Tasks {
			line := fmt.Sprintf("  %s %s", styledStatus(t.Status), idStyle.Render(t.ID))
			if t.Agent != "" {
				line += mutedStyle.Render(" [" + t.Agent + "]")
			}
			if !t.Parallelizable {
				line += mutedStyle.Render(" (sequential)")
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// RenderGraph renders each task with the tasks it depends on.
func RenderGraph(tasks []plan.Task) string {
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s %s", styledStatus(t.Status), idStyle.Render(t.ID))
		if len(t.DependsOn) > 0 {
			b.WriteString(mutedStyle.Render(" ← " + strings.Join(t.DependsOn, ", ")))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSnapshot renders the non-empty partitions of a snapshot.
func RenderSnapshot(s Snapshot) string {
	var b strings.Builder
	section := func(title string, tasks []plan.Task) {
		if len(tasks) == 0 {
			return
		}
		b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", title, len(tasks))) + "\n")
		for _, t := range tasks {
			fmt.Fprintf(&b, "  %s %s\n", styledStatus(t.Status), t.ID)
		}
	}

	section("Ready", s.Ready)
	if len(s.Blocked) > 0 {
		b.WriteString(headerStyle.Render(fmt.Sprintf("Blocked (%d)", len(s.Blocked))) + "\n")
		for _, bl := range s.Blocked {
			fmt.Fprintf(&b, "  %s %s%s\n", styledStatus(bl.Task.Status), bl.Task.ID,
				mutedStyle.Render(" waiting on "+strings.Join(bl.WaitingOn, ", ")))
		}
	}
	section("Unreachable", s.Unreachable)
	section("Running", s.Running)
	section("Completed", s.Completed)
	section("Failed", s.Failed)
	section("Skipped", s.Skipped)
	return b.String()
}

// Plain strips terminal styling from rendered output.
func Plain(rendered string) string {
	return ansi.Strip(rendered)
}
