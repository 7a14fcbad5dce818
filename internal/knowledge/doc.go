// Package knowledge carries what earlier tasks learned into the prompts of
// later ones.
//
// Two kinds of knowledge are kept. Declarations are explicit facts an agent
// asserted with "@declare domain:key = value"; they are shared with every
// task. Summaries are short digests of a completed task's output; a task only
// sees the summaries of its transitive dependencies.
//
// # Usage
//
//	kc := knowledge.NewCoordinator(bus, logger)
//	kc.Prepare(p)
//
//	tc := kc.ContextForTask(task)
//	prompt := tc.Render() + task.Prompt
//
//	kc.UpdateFromAgentOutput(plan.AgentOutput{TaskID: task.ID, Output: out})
//
// # Thread Safety
//
// Coordinator is safe for concurrent use. Tasks in one batch may read context
// while others record output.
package knowledge
