// Package quality checks agent output before the engine accepts it.
//
// Errors make a report fail and trigger a re-execution with feedback.
// Warnings are reported but never fail a task.
package quality

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/ensemble/internal/knowledge"
	"github.com/Iron-Ham/ensemble/internal/paths"
	"github.com/Iron-Ham/ensemble/internal/plan"
)

// Severity classifies an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding.
type Issue struct {
	Severity Severity
	Line     int // 1-based; 0 when the issue is not tied to a line
	Message  string
}

// Report is the outcome of a check.
type Report struct {
	Passed       bool
	ErrorCount   int
	WarningCount int
	Issues       []Issue
	// Feedback is a prompt-ready description of the errors, empty when passed.
	Feedback string
}

func (r *Report) add(sev Severity, line int, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Line: line, Message: fmt.Sprintf(format, args...)})
	if sev == SeverityError {
		r.ErrorCount++
	} else {
		r.WarningCount++
	}
}

// Gate runs the output checks.
type Gate struct{}

// NewGate returns a Gate.
func NewGate() *Gate { return &Gate{} }

// Check inspects output. taskContext supplies the declarations already in
// force so that silent redefinitions can be flagged.
func (g *Gate) Check(output string, taskContext knowledge.TaskContext) Report {
	var r Report

	if strings.TrimSpace(output) == "" {
		r.add(SeverityError, 0, "output is empty")
	}

	for _, f := range paths.Fences(output) {
		if !f.Closed {
			r.add(SeverityError, lineOf(output, f.Start), "code block is not closed")
		}
	}

	inFence := false
	for i, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if strings.Contains(line, "TODO") || strings.Contains(line, "FIXME") {
			r.add(SeverityWarning, i+1, "unfinished marker: %s", trimmed)
		}
		if inFence && isPlaceholder(trimmed) {
			r.add(SeverityWarning, i+1, "placeholder in code block")
		}
	}

	known := make(map[string]string, len(taskContext.Declarations))
	for _, d := range taskContext.Declarations {
		known[d.QualifiedKey()] = d.Value
	}
	for _, d := range plan.ParseDeclarations(output) {
		if prev, ok := known[d.QualifiedKey()]; ok && !strings.EqualFold(prev, d.Value) {
			r.add(SeverityWarning, 0, "redeclares %s as %q (was %q)", d.QualifiedKey(), d.Value, prev)
		}
	}

	r.Passed = r.ErrorCount == 0
	if !r.Passed {
		r.Feedback = feedback(r)
	}
	return r
}

func isPlaceholder(line string) bool {
	switch line {
	case "...", "// ...", "# ...", "/* ... */", "…":
		return true
	}
	return false
}

func lineOf(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}

func feedback(r Report) string {
	var b strings.Builder
	b.WriteString("Your previous response had problems that must be fixed:\n")
	for _, issue := range r.Issues {
		if issue.Severity != SeverityError {
			continue
		}
		if issue.Line > 0 {
			fmt.Fprintf(&b, "- line %d: %s\n", issue.Line, issue.Message)
		} else {
			fmt.Fprintf(&b, "- %s\n", issue.Message)
		}
	}
	b.WriteString("Respond again with the complete, corrected output.")
	return b.String()
}
