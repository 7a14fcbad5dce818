// Package styles holds the lipgloss styles shared by the progress view and
// the CLI's human-readable output.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/ensemble/internal/plan"
)

// Styles is the set of styles derived from one palette.
type Styles struct {
	Palette Palette

	Title   lipgloss.Style
	Header  lipgloss.Style
	Text    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
	Help    lipgloss.Style
	HelpKey lipgloss.Style

	DiffAdd     lipgloss.Style
	DiffRemove  lipgloss.Style
	DiffContext lipgloss.Style
}

// New builds the styles for the named theme.
func New(name ThemeName) *Styles {
	p := PaletteFor(name)
	return &Styles{
		Palette: p,

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Primary).
			MarginBottom(1),
		Header:  lipgloss.NewStyle().Bold(true).Foreground(p.Primary),
		Text:    lipgloss.NewStyle().Foreground(p.Text),
		Muted:   lipgloss.NewStyle().Foreground(p.Muted),
		Success: lipgloss.NewStyle().Foreground(p.Secondary),
		Warning: lipgloss.NewStyle().Foreground(p.Warning),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(p.Error),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Border).
			Padding(0, 1),
		Help:    lipgloss.NewStyle().Foreground(p.Muted),
		HelpKey: lipgloss.NewStyle().Bold(true).Foreground(p.Primary),

		DiffAdd:     lipgloss.NewStyle().Foreground(p.Secondary),
		DiffRemove:  lipgloss.NewStyle().Foreground(p.Error),
		DiffContext: lipgloss.NewStyle().Foreground(p.Muted),
	}
}

// Status renders text in the color of status.
func (s *Styles) Status(status plan.TaskStatus, text string) string {
	return lipgloss.NewStyle().Foreground(s.Palette.Status(status)).Render(text)
}
