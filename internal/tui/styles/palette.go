package styles

import (
	"slices"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/ensemble/internal/plan"
)

// ThemeName names a built-in color theme.
type ThemeName string

const (
	ThemeDefault ThemeName = "default"
	ThemeMonokai ThemeName = "monokai"
	ThemeDracula ThemeName = "dracula"
	ThemeNord    ThemeName = "nord"
)

// ThemeNames returns the built-in theme names, default first.
func ThemeNames() []string {
	return []string{string(ThemeDefault), string(ThemeMonokai), string(ThemeDracula), string(ThemeNord)}
}

// IsValidTheme reports whether name is a built-in theme.
func IsValidTheme(name string) bool {
	return slices.Contains(ThemeNames(), name)
}

// Palette is the handful of colors a theme defines. Task status and diff
// colors are derived from them.
type Palette struct {
	Primary   lipgloss.Color // titles, keys, progress start
	Secondary lipgloss.Color // success, progress end
	Active    lipgloss.Color // running tasks
	Warning   lipgloss.Color
	Skipped   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
	Border    lipgloss.Color
}

var palettes = map[ThemeName]Palette{
	ThemeDefault: {
		Primary: "#A78BFA", Secondary: "#10B981", Active: "#60A5FA",
		Warning: "#F59E0B", Skipped: "#F59E0B", Error: "#F87171",
		Muted: "#9CA3AF", Text: "#F9FAFB", Border: "#6B7280",
	},
	ThemeMonokai: {
		Primary: "#AE81FF", Secondary: "#A6E22E", Active: "#66D9EF",
		Warning: "#E6DB74", Skipped: "#FD971F", Error: "#F92672",
		Muted: "#75715E", Text: "#F8F8F2", Border: "#49483E",
	},
	ThemeDracula: {
		Primary: "#BD93F9", Secondary: "#50FA7B", Active: "#8BE9FD",
		Warning: "#F1FA8C", Skipped: "#FFB86C", Error: "#FF5555",
		Muted: "#6272A4", Text: "#F8F8F2", Border: "#44475A",
	},
	ThemeNord: {
		Primary: "#88C0D0", Secondary: "#A3BE8C", Active: "#81A1C1",
		Warning: "#EBCB8B", Skipped: "#D08770", Error: "#BF616A",
		Muted: "#7B88A1", Text: "#ECEFF4", Border: "#4C566A",
	},
}

// PaletteFor returns the palette of name, or the default palette for an
// unknown name.
func PaletteFor(name ThemeName) Palette {
	if p, ok := palettes[name]; ok {
		return p
	}
	return palettes[ThemeDefault]
}

// Status returns the color used for tasks in status.
func (p Palette) Status(status plan.TaskStatus) lipgloss.Color {
	switch status {
	case plan.TaskRunning:
		return p.Active
	case plan.TaskCompleted:
		return p.Secondary
	case plan.TaskFailed:
		return p.Error
	case plan.TaskSkipped:
		return p.Skipped
	default:
		return p.Muted
	}
}
