// Package tui renders a live view of a plan run: a progress bar, the task
// list with each task's latest output, and a feed of notable events.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/ensemble/internal/engine"
	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/tui/styles"
)

const (
	defaultMaxTasks = 20
	maxFeedLines    = 6
	maxBarWidth     = 60
)

// Controller is the part of the engine the view drives.
type Controller interface {
	State() engine.State
	Pause() bool
	ResumeExecution() bool
	Cancel() bool
}

// EventMsg carries a bus event into the model.
type EventMsg struct{ Event event.Event }

// DoneMsg reports that the run returned.
type DoneMsg struct {
	Summary *engine.Summary
	Err     error
}

type taskRow struct {
	id      string
	phase   string
	agent   string
	status  plan.TaskStatus
	last    string
	retries int
}

// Model is the bubbletea model for a run.
type Model struct {
	planName string
	ctrl     Controller
	styles   *styles.Styles
	maxTasks int

	rows  []taskRow
	index map[string]int

	state      string
	batch      string
	feed       []string
	cancelling bool
	done       bool
	summary    *engine.Summary
	err        error

	width    int
	spinner  spinner.Model
	progress progress.Model
}

// NewModel creates a model listing the tasks of p.
func NewModel(p *plan.Plan, ctrl Controller, theme string, maxTasks int) Model {
	st := styles.New(styles.ThemeName(theme))
	if maxTasks <= 0 {
		maxTasks = defaultMaxTasks
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = st.Header

	m := Model{
		ctrl:     ctrl,
		styles:   st,
		maxTasks: maxTasks,
		index:    make(map[string]int),
		state:    string(engine.StateIdle),
		spinner:  sp,
		progress: progress.New(progress.WithGradient(string(st.Palette.Primary), string(st.Palette.Secondary))),
	}
	if p != nil {
		m.planName = p.Name
		if m.planName == "" {
			m.planName = p.ID
		}
		for _, ph := range p.Phases {
			for _, t := range ph.Tasks {
				m.index[t.ID] = len(m.rows)
				m.rows = append(m.rows, taskRow{id: t.ID, phase: ph.ID, agent: t.Agent, status: t.Status})
			}
		}
	}
	return m
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles input, bus events and the final result.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(max(msg.Width-16, 10), maxBarWidth)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		if p, ok := pm.(progress.Model); ok {
			m.progress = p
		}
		return m, cmd

	case EventMsg:
		m.apply(msg.Event)
		return m, nil

	case DoneMsg:
		m.done = true
		m.summary = msg.Summary
		m.err = msg.Err
		if msg.Summary != nil {
			m.state = string(msg.Summary.State)
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		if m.done || m.cancelling || m.ctrl == nil {
			return m, tea.Quit
		}
		m.cancelling = m.ctrl.Cancel()
		if !m.cancelling {
			return m, tea.Quit
		}
		m.pushFeed(m.styles.Warning.Render("cancelling; press q again to leave now"))
	case "p", " ":
		if m.ctrl == nil || m.done {
			return m, nil
		}
		switch m.ctrl.State() {
		case engine.StateRunning:
			if m.ctrl.Pause() {
				m.pushFeed(m.styles.Muted.Render("pausing after the current batch"))
			}
		case engine.StatePaused:
			if m.ctrl.ResumeExecution() {
				m.pushFeed(m.styles.Muted.Render("resumed"))
			}
		}
	}
	return m, nil
}

// apply folds one event into the view state.
func (m *Model) apply(ev event.Event) {
	switch e := ev.(type) {
	case event.EngineStateChangedEvent:
		m.state = e.To
	case event.BatchEvent:
		if e.EventType() == event.TypeBatchStarted {
			m.batch = batchLabel(e)
			for _, id := range e.TaskIDs {
				m.setStatus(id, plan.TaskRunning)
			}
		}
	case event.TaskCompletedEvent:
		if e.Success {
			m.setStatus(e.TaskID, plan.TaskCompleted)
		} else {
			m.setStatus(e.TaskID, plan.TaskFailed)
		}
		if row := m.row(e.TaskID); row != nil && e.Agent != "" {
			row.agent = e.Agent
		}
	case event.TaskSkippedEvent:
		m.setStatus(e.TaskID, plan.TaskSkipped)
	case event.SessionEvent:
		if row := m.row(e.TaskID); row != nil {
			row.agent = e.Agent
			if e.EventType() == event.TypeSessionRetrying {
				row.retries = e.RetryCount
			}
		}
	case event.SessionProgressEvent:
		if row := m.row(e.TaskID); row != nil {
			if line := lastLine(e.Chunk); line != "" {
				row.last = line
			}
		}
	}
	if line, ok := FormatEvent(ev); ok {
		m.pushFeed(line)
	}
}

func (m *Model) row(id string) *taskRow {
	i, ok := m.index[id]
	if !ok {
		return nil
	}
	return &m.rows[i]
}

func (m *Model) setStatus(id string, s plan.TaskStatus) {
	if row := m.row(id); row != nil {
		row.status = s
	}
}

func (m *Model) pushFeed(line string) {
	m.feed = append(m.feed, line)
	if len(m.feed) > maxFeedLines {
		m.feed = m.feed[len(m.feed)-maxFeedLines:]
	}
}

// counts returns finished and total task counts.
func (m Model) counts() (finished, total int) {
	for _, r := range m.rows {
		if r.status.IsTerminal() {
			finished++
		}
	}
	return finished, len(m.rows)
}

// Summary returns the run result once DoneMsg has arrived.
func (m Model) Summary() (*engine.Summary, error) {
	return m.summary, m.err
}

func lastLine(chunk string) string {
	lines := strings.Split(strings.TrimRight(chunk, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
