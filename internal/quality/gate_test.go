package quality

import (
	"strings"
	"testing"

	"github.com/Iron-Ham/ensemble/internal/knowledge"
	"github.com/Iron-Ham/ensemble/internal/plan"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name         string
		output       string
		wantPassed   bool
		wantErrors   int
		wantWarnings int
	}{
		{
			name:       "clean output",
			output:     "Created `src/app.ts`:\n```ts\nexport const x = 1;\n```\n",
			wantPassed: true,
		},
		{
			name:       "empty",
			output:     "  \n\t",
			wantErrors: 1,
		},
		{
			name:       "unclosed fence",
			output:     "Here:\n```go\nfunc main() {}\n",
			wantErrors: 1,
		},
		{
			name:         "todo and fixme",
			output:       "// TODO: wire auth\nfoo()\n# FIXME later\n",
			wantPassed:   true,
			wantWarnings: 2,
		},
		{
			name:         "placeholder in block",
			output:       "```js\nfunction a() {\n  ...\n}\n```\nAnd ... outside is fine.",
			wantPassed:   true,
			wantWarnings: 1,
		},
	}

	g := NewGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := g.Check(tt.output, knowledge.TaskContext{})
			if r.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v (issues %+v)", r.Passed, tt.wantPassed, r.Issues)
			}
			if r.ErrorCount != tt.wantErrors {
				t.Errorf("ErrorCount = %d, want %d", r.ErrorCount, tt.wantErrors)
			}
			if r.WarningCount != tt.wantWarnings {
				t.Errorf("WarningCount = %d, want %d", r.WarningCount, tt.wantWarnings)
			}
			if r.Passed && r.Feedback != "" {
				t.Errorf("Feedback = %q, want empty when passed", r.Feedback)
			}
		})
	}
}

func TestCheck_Feedback(t *testing.T) {
	r := NewGate().Check("intro\n```go\nx := 1\n", knowledge.TaskContext{})
	if !strings.Contains(r.Feedback, "line 2: code block is not closed") {
		t.Errorf("Feedback = %q, want the unclosed block on line 2", r.Feedback)
	}
}

func TestCheck_Redeclaration(t *testing.T) {
	tc := knowledge.TaskContext{Declarations: []plan.Declaration{
		{Domain: "auth", Key: "strategy", Value: "JWT"},
	}}
	g := NewGate()

	if r := g.Check("@declare auth:strategy = jwt", tc); r.WarningCount != 0 {
		t.Errorf("same value, different case: WarningCount = %d, want 0", r.WarningCount)
	}
	r := g.Check("@declare auth:strategy = session", tc)
	if r.WarningCount != 1 || !r.Passed {
		t.Errorf("redeclaration: warnings = %d passed = %v, want 1 and passed", r.WarningCount, r.Passed)
	}
}
