package conflict

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/ids"
	"github.com/Iron-Ham/ensemble/internal/plan"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)

func newTestResolver(bus *event.Bus) *Resolver {
	return NewResolver(Config{IDs: &ids.Counter{}, Now: func() time.Time { return fixedNow }}, bus, nil)
}

func output(taskID, agent, text string, decls ...plan.Declaration) plan.AgentOutput {
	return plan.AgentOutput{TaskID: taskID, Agent: agent, Output: text, Declarations: decls}
}

func ofType[T Conflict](conflicts []Conflict) []T {
	var out []T
	for _, c := range conflicts {
		if t, ok := c.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

func TestDetect_NeedsTwoOutputs(t *testing.T) {
	r := newTestResolver(nil)
	assert.Nil(t, r.Detect(nil))
	assert.Nil(t, r.Detect([]plan.AgentOutput{output("a", "claude", "GET /api/users returns a list")}))
}

func TestDetect_APIContract(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		want     int
		severity Severity
	}{
		{
			name:     "sensitive path differs",
			a:        "GET /api/users returns {id, name}",
			b:        "GET /api/users returns {id, email}",
			want:     1,
			severity: SeverityHigh,
		},
		{
			name:     "auth prefix",
			a:        "POST /api/auth/login accepts {user, pass}",
			b:        "POST /api/auth/login accepts a JWT",
			want:     1,
			severity: SeverityHigh,
		},
		{
			name:     "ordinary path",
			a:        "GET /api/products returns Product[]",
			b:        "GET /api/products returns a page of products",
			want:     1,
			severity: SeverityMedium,
		},
		{
			name: "same contract modulo whitespace and case",
			a:    "GET /api/users returns   {id, name}",
			b:    "GET /api/users Returns {id,\n name}",
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(nil)
			got := ofType[APIContract](r.Detect([]plan.AgentOutput{
				output("t1", "copilot", tt.a),
				output("t2", "claude", tt.b),
			}))
			require.Len(t, got, tt.want)
			if tt.want == 0 {
				return
			}
			c := got[0]
			assert.Equal(t, [2]string{"t1", "t2"}, c.TaskIDs)
			assert.Equal(t, [2]string{"copilot", "claude"}, c.Agents)
			assert.Equal(t, tt.severity, c.Severity)
			assert.Equal(t, fixedNow, c.DetectedAt)
			assert.NotEmpty(t, c.Snippets[0])
		})
	}
}

func TestDetect_APIContract_ReportsPairOnce(t *testing.T) {
	r := newTestResolver(nil)
	got := ofType[APIContract](r.Detect([]plan.AgentOutput{
		output("t1", "a", "GET /api/items returns ids\n\nAlso: GET /api/items returns ids only"),
		output("t2", "b", "GET /api/items returns full objects"),
	}))
	assert.Len(t, got, 1)
}

func TestDetect_APIContract_SameTaskIgnored(t *testing.T) {
	r := newTestResolver(nil)
	got := r.Detect([]plan.AgentOutput{
		output("t1", "a", "GET /api/items returns ids"),
		output("t1", "a", "GET /api/items returns objects"),
	})
	assert.Empty(t, got)
}

func TestDetect_DuplicateWork(t *testing.T) {
	r := newTestResolver(nil)
	got := ofType[DuplicateWork](r.Detect([]plan.AgentOutput{
		output("t1", "copilot", "```ts\nexport class UserService {}\nexport function formatDate() {}\n```"),
		output("t2", "claude", "```ts\nexport class UserService {}\n```\nmodel Order {\n  id Int\n}"),
		output("t3", "codex", "```go\nfunc formatDate() {}\n```\n```sql\nCREATE TABLE Order (id int);\n```"),
	}))

	byName := make(map[string][]DuplicateWork)
	for _, d := range got {
		byName[d.Name] = append(byName[d.Name], d)
	}
	require.Len(t, byName["UserService"], 1)
	assert.Equal(t, KindComponent, byName["UserService"][0].Kind)
	assert.Equal(t, SeverityMedium, byName["UserService"][0].Severity)

	require.Len(t, byName["formatDate"], 1)
	assert.Equal(t, KindFunction, byName["formatDate"][0].Kind)
	assert.Equal(t, [2]string{"t1", "t3"}, byName["formatDate"][0].TaskIDs)

	require.Len(t, byName["Order"], 1)
	assert.Equal(t, KindModel, byName["Order"][0].Kind)
	assert.Equal(t, SeverityHigh, byName["Order"][0].Severity)
}

func TestDetect_DuplicateWork_OnePerPair(t *testing.T) {
	r := newTestResolver(nil)
	text := "```ts\nexport function slugify() {}\n```"
	got := ofType[DuplicateWork](r.Detect([]plan.AgentOutput{
		output("t1", "a", text),
		output("t2", "b", text),
		output("t3", "c", text),
	}))
	assert.Len(t, got, 3)
}

func TestDetect_DuplicateWork_ModelWins(t *testing.T) {
	r := newTestResolver(nil)
	got := ofType[DuplicateWork](r.Detect([]plan.AgentOutput{
		output("t1", "a", "```ts\nexport class Invoice {}\n```"),
		output("t2", "b", "```prisma\nmodel Invoice {\n  id Int\n}\n```"),
	}))
	require.Len(t, got, 1)
	assert.Equal(t, KindModel, got[0].Kind)
	assert.Equal(t, SeverityHigh, got[0].Severity)
}

func TestDetect_FileMerge(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		want     int
		severity Severity
	}{
		{
			name:     "different content",
			a:        "Update `src/app.ts`:\n```ts\nconsole.log(1)\n```\n",
			b:        "Update `src/app.ts`:\n```ts\nconsole.log(2)\n```\n",
			want:     1,
			severity: SeverityMedium,
		},
		{
			name:     "sensitive config",
			a:        "package.json:\n```json\n{\"name\": \"a\"}\n```\n",
			b:        "package.json:\n```json\n{\"name\": \"b\"}\n```\n",
			want:     1,
			severity: SeverityHigh,
		},
		{
			name: "line endings and padding only",
			a:    "src/app.ts\n```ts\nconsole.log(1)\r\nconsole.log(2)\n```\n",
			b:    "src/app.ts\n```ts\n\nconsole.log(1)\nconsole.log(2)  \n```\n",
			want: 0,
		},
		{
			name: "block too far from the mention",
			a:    "src/app.ts\n" + strings.Repeat("filler ", 100) + "\n```ts\nx\n```\n",
			b:    "src/app.ts\n```ts\ny\n```\n",
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(nil)
			got := ofType[FileMerge](r.Detect([]plan.AgentOutput{
				output("t1", "copilot", tt.a),
				output("t2", "claude", tt.b),
			}))
			require.Len(t, got, tt.want)
			if tt.want == 0 {
				return
			}
			c := got[0]
			assert.Equal(t, tt.severity, c.Severity)
			assert.Contains(t, c.Merged, "<<<<<<< t1\n")
			assert.Contains(t, c.Merged, "\n=======\n")
			assert.Contains(t, c.Merged, ">>>>>>> t2\n")
		})
	}
}

func TestDetect_Contradiction(t *testing.T) {
	r := newTestResolver(nil)
	got := ofType[Contradiction](r.Detect([]plan.AgentOutput{
		output("t1", "copilot", "done",
			plan.Declaration{Domain: "auth", Key: "strategy", Value: "jwt"},
			plan.Declaration{Domain: "db", Key: "engine", Value: "postgres"},
			plan.Declaration{Domain: "style", Key: "quotes", Value: "single"}),
		output("t2", "claude", "done",
			plan.Declaration{Domain: "auth", Key: "strategy", Value: "session"},
			plan.Declaration{Domain: "db", Key: "engine", Value: "POSTGRES"},
			plan.Declaration{Domain: "style", Key: "quotes", Value: "double"}),
	}))
	require.Len(t, got, 2)

	assert.Equal(t, "auth", got[0].Domain)
	assert.Equal(t, [2]string{"jwt", "session"}, got[0].Values)
	assert.Equal(t, SeverityHigh, got[0].Severity)

	assert.Equal(t, "quotes", got[1].Key)
	assert.Equal(t, SeverityLow, got[1].Severity)
}

func TestDetect_ContradictionIgnoresPlainText(t *testing.T) {
	r := newTestResolver(nil)
	got := r.Detect([]plan.AgentOutput{
		output("t1", "a", "@declare auth:strategy = jwt"),
		output("t2", "b", "@declare auth:strategy = session"),
	})
	assert.Empty(t, ofType[Contradiction](got))
}

func TestDetect_IDsAndEvents(t *testing.T) {
	bus := event.NewBus(nil)
	var events []event.ConflictEvent
	bus.Subscribe(event.TypeConflictDetected, func(e event.Event) {
		events = append(events, e.(event.ConflictEvent))
	})
	r := newTestResolver(bus)

	got := r.Detect([]plan.AgentOutput{
		output("t1", "a", "GET /api/orders returns Order"),
		output("t2", "b", "GET /api/orders returns Order[]"),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "conflict-1", got[0].Common().ID)
	assert.Equal(t, "conflict-2", got[1].Common().ID)
	require.Len(t, events, 2)
	assert.Equal(t, string(TypeAPIContract), events[0].ConflictType)
	assert.Equal(t, [2]string{"t1", "t2"}, events[0].TaskIDs)
}

func duplicate(agentA, agentB string) DuplicateWork {
	return DuplicateWork{
		Base: Base{ID: "c1", TaskIDs: [2]string{"t1", "t2"}, Agents: [2]string{agentA, agentB}, Severity: SeverityMedium},
		Name: "UserService",
		Kind: KindComponent,
	}
}

func TestAutoResolve(t *testing.T) {
	tests := []struct {
		name       string
		conflict   Conflict
		wantOK     bool
		wantStrat  Strategy
		wantWinner string
	}{
		{"architect on side b", duplicate("copilot", "claude"), true, StrategyUseB, "t2"},
		{"architect on side a", duplicate("claude", "codex"), true, StrategyUseA, "t1"},
		{"same agent prefers later task", duplicate("codex", "codex"), true, StrategyUseB, "t2"},
		{"architect on both sides", duplicate("claude", "claude"), true, StrategyUseB, "t2"},
		{"no architect", duplicate("copilot", "codex"), false, "", ""},
		{
			name:      "low contradiction",
			conflict:  Contradiction{Base: Base{ID: "c2", Severity: SeverityLow}, Domain: "style", Key: "quotes"},
			wantOK:    true,
			wantStrat: StrategyFlagForReview,
		},
		{
			name:     "high contradiction",
			conflict: Contradiction{Base: Base{ID: "c3", Severity: SeverityHigh}, Domain: "auth", Key: "strategy"},
		},
		{name: "api contract", conflict: APIContract{Base: Base{ID: "c4"}}},
		{name: "file merge", conflict: FileMerge{Base: Base{ID: "c5"}}},
	}
	r := newTestResolver(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := r.AutoResolve(tt.conflict)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				assert.Nil(t, res)
				return
			}
			assert.Equal(t, tt.conflict.Common().ID, res.ConflictID)
			assert.Equal(t, tt.wantStrat, res.Strategy)
			assert.Equal(t, tt.wantWinner, res.WinningTaskID)
			assert.Equal(t, ResolvedByAuto, res.ResolvedBy)
		})
	}
}

func TestAutoResolve_ConfiguredArchitect(t *testing.T) {
	r := NewResolver(Config{ArchitectRole: "gemini"}, nil, nil)
	res, ok := r.AutoResolve(duplicate("gemini", "claude"))
	require.True(t, ok)
	assert.Equal(t, StrategyUseA, res.Strategy)
}

func TestUserResolutionOptions(t *testing.T) {
	base := Base{ID: "c1", TaskIDs: [2]string{"t1", "t2"}, Agents: [2]string{"copilot", "claude"}}
	merge := FileMerge{Base: base, Path: "src/app.ts", Contents: [2]string{"a", "b"}, Merged: MergeMarkers("a", "b", "t1", "t2")}
	api := APIContract{Base: base, Endpoint: "GET /api/users"}

	r := newTestResolver(nil)
	for _, c := range []Conflict{merge, api, duplicate("copilot", "codex"), Contradiction{Base: base, Domain: "db", Key: "engine", Values: [2]string{"pg", "mysql"}}} {
		opts := r.UserResolutionOptions(c)
		require.Len(t, opts, 3, "options for %s", c.Type())
		assert.Equal(t, StrategyUseA, opts[0].Resolution.Strategy)
		assert.Equal(t, StrategyUseB, opts[1].Resolution.Strategy)
		for _, o := range opts {
			assert.Equal(t, ResolvedByUser, o.Resolution.ResolvedBy)
			assert.Equal(t, c.Common().ID, o.Resolution.ConflictID)
			assert.NotEmpty(t, o.Label)
		}
	}

	opts := r.UserResolutionOptions(merge)
	assert.Equal(t, StrategyMerge, opts[2].Resolution.Strategy)
	assert.Equal(t, merge.Merged, opts[2].Resolution.MergedContent)
	assert.Equal(t, "b", opts[1].Resolution.MergedContent)

	opts = r.UserResolutionOptions(api)
	assert.Equal(t, StrategyPauseAgent, opts[2].Resolution.Strategy)
	assert.Equal(t, "claude", opts[2].Resolution.PausedAgent)
}

func TestApplyResolution_History(t *testing.T) {
	bus := event.NewBus(nil)
	var resolved int
	bus.Subscribe(event.TypeConflictResolved, func(event.Event) { resolved++ })
	r := newTestResolver(bus)

	r.ApplyResolution(Resolution{ConflictID: "c1", Strategy: StrategyUseA, ResolvedBy: ResolvedByUser})
	r.ApplyResolution(Resolution{ConflictID: "c2", Strategy: StrategyFlagForReview, ResolvedBy: ResolvedByAuto})
	r.ApplyResolution(Resolution{ConflictID: "c1", Strategy: StrategyMerge, ResolvedBy: ResolvedByUser})

	history := r.History()
	require.Len(t, history, 2)
	assert.Equal(t, "c1", history[0].ConflictID)
	assert.Equal(t, StrategyMerge, history[0].Strategy)
	assert.Equal(t, "c2", history[1].ConflictID)
	assert.Equal(t, 3, resolved)

	history[0].Strategy = StrategyUseB
	assert.Equal(t, StrategyMerge, r.History()[0].Strategy, "History() must return a copy")
}

func TestResolveAll(t *testing.T) {
	r := newTestResolver(nil)
	pending := r.ResolveAll([]Conflict{
		duplicate("copilot", "claude"),
		APIContract{Base: Base{ID: "c9"}},
	})
	require.Len(t, pending, 1)
	assert.Equal(t, "c9", pending[0].Common().ID)
	assert.Len(t, r.History(), 1)
}

func TestBuildDiffView(t *testing.T) {
	got := BuildDiffView("x\ny\nz", "y\nw")
	want := []DiffLine{
		{Kind: DiffRemoved, Text: "x"},
		{Kind: DiffContext, Text: "y"},
		{Kind: DiffRemoved, Text: "z"},
		{Kind: DiffAdded, Text: "w"},
	}
	assert.Equal(t, want, got)
}

func TestUnifiedDiff(t *testing.T) {
	diff, err := UnifiedDiff("x\ny\nz\n", "y\nw\n", "t1/app.ts", "t2/app.ts")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- t1/app.ts")
	assert.Contains(t, diff, "+++ t2/app.ts")
	assert.Contains(t, diff, "-x\n")
	assert.Contains(t, diff, "+w\n")

	same, err := UnifiedDiff("a\n", "a\n", "l", "r")
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestDiff(t *testing.T) {
	merge := FileMerge{Base: Base{TaskIDs: [2]string{"t1", "t2"}}, Path: "a.go", Contents: [2]string{"one\n", "two\n"}}
	diff, err := Diff(merge)
	require.NoError(t, err)
	assert.Contains(t, diff, "--- t1/a.go")

	diff, err = Diff(duplicate("a", "b"))
	require.NoError(t, err)
	assert.Empty(t, diff)
}
