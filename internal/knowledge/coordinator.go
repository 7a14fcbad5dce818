package knowledge

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/logging"
	"github.com/Iron-Ham/ensemble/internal/plan"
	"github.com/Iron-Ham/ensemble/internal/util"
)

// DefaultSummaryWidth bounds the length of a task summary.
const DefaultSummaryWidth = 280

// Summary is the digest of one completed task.
type Summary struct {
	TaskID  string
	Agent   string
	Summary string
}

// TaskContext is the knowledge visible to one task.
type TaskContext struct {
	TaskID       string
	Dependencies []Summary
	Declarations []plan.Declaration
}

// IsEmpty reports whether there is nothing to inject.
func (tc TaskContext) IsEmpty() bool {
	return len(tc.Dependencies) == 0 && len(tc.Declarations) == 0
}

// Render formats the context as a block suitable for prepending to a prompt.
// Returns an empty string when there is nothing to share.
func (tc TaskContext) Render() string {
	if tc.IsEmpty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("<shared-context>\n")
	if len(tc.Dependencies) > 0 {
		b.WriteString("[COMPLETED DEPENDENCIES]\n")
		for _, s := range tc.Dependencies {
			fmt.Fprintf(&b, "  %s (%s): %s\n", s.TaskID, s.Agent, s.Summary)
		}
	}
	if len(tc.Declarations) > 0 {
		if len(tc.Dependencies) > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[DECLARATIONS]\n")
		for _, d := range tc.Declarations {
			fmt.Fprintf(&b, "  %s = %s\n", d.QualifiedKey(), d.Value)
		}
	}
	b.WriteString("</shared-context>\n\n")
	return b.String()
}

// Coordinator accumulates declarations and summaries across a plan run.
type Coordinator struct {
	bus    *event.Bus
	logger *logging.Logger
	width  int

	mu           sync.RWMutex
	deps         map[string][]string
	summaries    map[string]Summary
	declarations []plan.Declaration
	declIndex    map[string]int
}

// NewCoordinator creates an empty Coordinator publishing on bus.
func NewCoordinator(bus *event.Bus, logger *logging.Logger) *Coordinator {
	return &Coordinator{
		bus:       bus,
		logger:    logger,
		width:     DefaultSummaryWidth,
		deps:      make(map[string][]string),
		summaries: make(map[string]Summary),
		declIndex: make(map[string]int),
	}
}

// Prepare records the dependency graph of p so that ContextForTask can follow
// transitive dependencies.
func (c *Coordinator) Prepare(p *plan.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range p.AllTasks() {
		c.deps[t.ID] = t.DependsOn
	}
}

// ContextForTask returns the summaries of task's transitive dependencies, in
// dependency discovery order, and every declaration recorded so far.
func (c *Coordinator) ContextForTask(task plan.Task) TaskContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tc := TaskContext{TaskID: task.ID}
	seen := map[string]bool{task.ID: true}
	queue := slices.Clone(task.DependsOn)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		if s, ok := c.summaries[id]; ok {
			tc.Dependencies = append(tc.Dependencies, s)
		}
		queue = append(queue, c.deps[id]...)
	}
	tc.Declarations = slices.Clone(c.declarations)
	return tc
}

// UpdateFromAgentOutput records a summary of out and merges its declarations.
// A later declaration of the same domain:key replaces the earlier value.
func (c *Coordinator) UpdateFromAgentOutput(out plan.AgentOutput) {
	decls := out.Declarations
	if decls == nil {
		decls = plan.ParseDeclarations(out.Output)
	}

	c.mu.Lock()
	c.summaries[out.TaskID] = Summary{
		TaskID:  out.TaskID,
		Agent:   out.Agent,
		Summary: summarize(out.Output, c.width),
	}
	for _, d := range decls {
		if i, ok := c.declIndex[d.QualifiedKey()]; ok {
			c.declarations[i] = d
			continue
		}
		c.declIndex[d.QualifiedKey()] = len(c.declarations)
		c.declarations = append(c.declarations, d)
	}
	c.mu.Unlock()

	c.logger.Debug("context updated", "task_id", out.TaskID, "declarations", len(decls))
	c.bus.Publish(event.NewContextUpdatedEvent(out.TaskID, out.Agent, len(decls)))
}

// Declarations returns every declaration recorded so far.
func (c *Coordinator) Declarations() []plan.Declaration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.declarations)
}

// summarize collapses whitespace, drops fenced code, and truncates to width.
func summarize(output string, width int) string {
	var kept []string
	inFence := false
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if !inFence {
			kept = append(kept, line)
		}
	}
	s := strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
	if width > 0 {
		s = util.Truncate(s, width)
	}
	return s
}
