// Package output holds the small helpers the commands share for writing
// human and JSON output.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Iron-Ham/ensemble/internal/scheduler"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Context returns the command's context, or a background context when the
// command was invoked without one.
func Context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Styled writes rendered to w, stripping terminal styling unless w is a
// terminal.
func Styled(w io.Writer, rendered string) {
	if !IsTerminal(w) {
		rendered = scheduler.Plain(rendered)
	}
	fmt.Fprint(w, rendered)
}

// JSON writes v as indented JSON followed by a newline.
func JSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// SilentError signals failure whose details were already written. Commands
// return it to set a non-zero exit code without cobra printing it again.
type SilentError struct {
	Reason string
}

func (e *SilentError) Error() string {
	if e.Reason == "" {
		return "command failed"
	}
	return e.Reason
}
