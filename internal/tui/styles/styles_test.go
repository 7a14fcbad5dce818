package styles

import (
	"testing"

	"github.com/Iron-Ham/ensemble/internal/config"
	"github.com/Iron-Ham/ensemble/internal/plan"
)

func TestThemeNamesMatchConfig(t *testing.T) {
	got := ThemeNames()
	want := config.ValidThemes()
	if len(got) != len(want) {
		t.Fatalf("ThemeNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ThemeNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsValidTheme(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"default", true},
		{"nord", true},
		{"solarized", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidTheme(tt.name); got != tt.want {
			t.Errorf("IsValidTheme(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPaletteFor(t *testing.T) {
	if got, want := PaletteFor("unknown"), PaletteFor(ThemeDefault); got != want {
		t.Errorf("PaletteFor(unknown) = %+v, want the default palette", got)
	}
	for _, name := range ThemeNames() {
		p := PaletteFor(ThemeName(name))
		if p.Primary == "" || p.Secondary == "" || p.Error == "" || p.Muted == "" {
			t.Errorf("palette %s has unset colors: %+v", name, p)
		}
	}
}

func TestPaletteStatus(t *testing.T) {
	p := PaletteFor(ThemeNord)
	tests := []struct {
		status plan.TaskStatus
		want   string
	}{
		{plan.TaskPending, string(p.Muted)},
		{plan.TaskRunning, string(p.Active)},
		{plan.TaskCompleted, string(p.Secondary)},
		{plan.TaskFailed, string(p.Error)},
		{plan.TaskSkipped, string(p.Skipped)},
	}
	for _, tt := range tests {
		if got := string(p.Status(tt.status)); got != tt.want {
			t.Errorf("Status(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestNew_DiffColors(t *testing.T) {
	s := New(ThemeDracula)
	if got := s.DiffAdd.GetForeground(); got != s.Palette.Secondary {
		t.Errorf("DiffAdd foreground = %v, want %v", got, s.Palette.Secondary)
	}
	if got := s.DiffRemove.GetForeground(); got != s.Palette.Error {
		t.Errorf("DiffRemove foreground = %v, want %v", got, s.Palette.Error)
	}
}
