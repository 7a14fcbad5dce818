package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/ensemble/internal/engine"
	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/scheduler"
	"github.com/Iron-Ham/ensemble/internal/util"
)

const (
	idWidth    = 18
	agentWidth = 10
)

// View renders the model.
func (m Model) View() string {
	var b strings.Builder
	st := m.styles

	header := st.Header.Render("ensemble") + st.Muted.Render(" · ") + st.Text.Render(m.planName)
	state := m.state
	if !m.done && m.state == string(engine.StateRunning) {
		state = m.spinner.View() + " " + state
	}
	b.WriteString(header + "  " + st.Muted.Render("[") + state + st.Muted.Render("]"))
	b.WriteString("\n\n")

	finished, total := m.counts()
	pct := 0.0
	if total > 0 {
		pct = float64(finished) / float64(total)
	}
	b.WriteString(m.progress.ViewAs(pct))
	b.WriteString(st.Muted.Render(fmt.Sprintf("  %d/%d tasks", finished, total)))
	if m.batch != "" {
		b.WriteString(st.Muted.Render("  " + m.batch))
	}
	b.WriteString("\n\n")

	b.WriteString(m.renderTasks())

	if len(m.feed) > 0 {
		b.WriteString("\n")
		for _, line := range m.feed {
			b.WriteString(m.fit("  " + line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.renderResult())
	} else {
		b.WriteString(st.HelpKey.Render("p") + st.Help.Render(" pause/resume  ") +
			st.HelpKey.Render("q") + st.Help.Render(" cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

// renderTasks shows at most maxTasks rows, scrolled so the first active task
// is visible.
func (m Model) renderTasks() string {
	start := 0
	if len(m.rows) > m.maxTasks {
		for i, r := range m.rows {
			if r.status == plan.TaskRunning || r.status == plan.TaskPending {
				start = max(0, min(i-m.maxTasks/4, len(m.rows)-m.maxTasks))
				break
			}
		}
	}
	end := min(len(m.rows), start+m.maxTasks)

	var b strings.Builder
	if start > 0 {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  … %d earlier", start)))
		b.WriteString("\n")
	}
	phase := ""
	for _, r := range m.rows[start:end] {
		if r.phase != phase {
			phase = r.phase
			b.WriteString(m.styles.Muted.Render(phase))
			b.WriteString("\n")
		}
		b.WriteString(m.fit(m.renderRow(r)))
		b.WriteString("\n")
	}
	if end < len(m.rows) {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  … %d more", len(m.rows)-end)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderRow(r taskRow) string {
	st := m.styles
	icon := st.Status(r.status, scheduler.StatusIcon(r.status))
	id := util.Fit(r.id, idWidth)
	agent := util.Fit(r.agent, agentWidth)

	line := "  " + icon + " " + st.Text.Render(id) + " " + st.Muted.Render(agent)
	if r.retries > 0 {
		line += st.Warning.Render(fmt.Sprintf(" retry %d", r.retries))
	}
	if r.last != "" && r.status == plan.TaskRunning {
		line += " " + st.Muted.Render(r.last)
	}
	return line
}

func (m Model) renderResult() string {
	st := m.styles
	if m.err != nil {
		return st.Error.Render("✗ " + m.err.Error())
	}
	if m.summary == nil {
		return ""
	}
	line := fmt.Sprintf("%d completed, %d failed, %d skipped in %s",
		m.summary.Completed, m.summary.Failed, m.summary.Skipped, m.summary.Duration.Round(time.Millisecond))
	if m.summary.Failed > 0 {
		return st.Warning.Render("⚠ " + line)
	}
	return st.Success.Render("✓ " + line)
}

func (m Model) fit(line string) string {
	if m.width <= 0 {
		return line
	}
	return util.Truncate(line, m.width)
}

func batchLabel(e event.BatchEvent) string {
	return fmt.Sprintf("batch %d/%d · %s", e.Index+1, e.Total, e.PhaseID)
}

// FormatEvent returns a one-line description of the events worth showing in
// a feed. Progress chunks and routine transitions report false.
func FormatEvent(ev event.Event) (string, bool) {
	switch e := ev.(type) {
	case event.BatchEvent:
		if e.EventType() == event.TypeBatchStarted {
			return fmt.Sprintf("%s started: %s", batchLabel(e), strings.Join(e.TaskIDs, ", ")), true
		}
	case event.TaskCompletedEvent:
		if e.Success {
			return fmt.Sprintf("✓ %s (%s)", e.TaskID, e.Agent), true
		}
		return fmt.Sprintf("✗ %s: %s", e.TaskID, e.Error), true
	case event.TaskSkippedEvent:
		return fmt.Sprintf("⊘ %s skipped", e.TaskID), true
	case event.PhaseCompletedEvent:
		return fmt.Sprintf("phase %s %s (%d completed, %d failed, %d skipped)",
			e.PhaseID, e.Status, e.Completed, e.Failed, e.Skipped), true
	case event.SessionEvent:
		if e.EventType() == event.TypeSessionRetrying {
			return fmt.Sprintf("↻ %s retry %d on %s: %s", e.TaskID, e.RetryCount, e.Agent, e.Error), true
		}
	case event.ConflictEvent:
		if e.EventType() == event.TypeConflictDetected {
			return fmt.Sprintf("⚠ %s conflict between %s and %s", e.ConflictType, e.TaskIDs[0], e.TaskIDs[1]), true
		}
	case event.CheckpointSavedEvent:
		if e.Reason != "batch" && e.Reason != "autosave" {
			return fmt.Sprintf("checkpoint saved (%s)", e.Reason), true
		}
	}
	return "", false
}
