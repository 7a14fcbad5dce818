package util

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Ellipsis ends text cut by Truncate.
const Ellipsis = "…"

// Truncate shortens s to at most width terminal columns, ending it with
// Ellipsis when anything was cut. Escape sequences are kept and wide runes
// count as two columns. A non-positive width yields "".
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, Ellipsis)
}

// Fit truncates s to width columns and pads it with spaces to exactly that
// width, for aligned columns.
func Fit(s string, width int) string {
	s = Truncate(s, width)
	if pad := width - ansi.StringWidth(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}
