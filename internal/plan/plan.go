// Package plan defines the execution plan model: phases of tasks connected by
// dependency edges, the statuses the engine moves them through, and the agent
// outputs tasks produce. It also loads plans from YAML, JSON or TOML files and
// validates them before execution.
package plan

import (
	"slices"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// IsTerminal reports whether no further transition is expected.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// Satisfies reports whether a dependency in this status unblocks dependents.
func (s TaskStatus) Satisfies() bool {
	return s == TaskCompleted || s == TaskSkipped
}

// PhaseStatus is the lifecycle state of a phase.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
)

// Task is one unit of work assigned to an agent role.
type Task struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
	// Agent is the worker role assigned to the task (e.g. "architect", "claude").
	Agent string `json:"agent"`
	// DependsOn lists task IDs that must complete before this task can start.
	DependsOn        []string `json:"depends_on,omitempty"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	// Parallelizable false forces the task into a batch of its own.
	Parallelizable bool       `json:"parallelizable"`
	Status         TaskStatus `json:"status"`
}

// Text returns the label and prompt joined, the text that file paths are
// extracted from.
func (t Task) Text() string {
	return t.Label + "\n" + t.Prompt
}

// DependsOnID reports whether t lists id as a direct dependency.
func (t Task) DependsOnID(id string) bool {
	return slices.Contains(t.DependsOn, id)
}

// Phase is an ordered group of tasks executed before the next phase starts.
type Phase struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Tasks  []Task      `json:"tasks"`
	Status PhaseStatus `json:"status"`
}

// Plan is the ordered list of phases the engine drives to completion.
type Plan struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phases    []Phase   `json:"phases"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Task returns a pointer to the task with the given ID, or nil.
func (p *Plan) Task(id string) *Task {
	for i := range p.Phases {
		for j := range p.Phases[i].Tasks {
			if p.Phases[i].Tasks[j].ID == id {
				return &p.Phases[i].Tasks[j]
			}
		}
	}
	return nil
}

// AllTasks returns a copy of every task across all phases, in plan order.
func (p *Plan) AllTasks() []Task {
	var tasks []Task
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			tasks = append(tasks, t.clone())
		}
	}
	return tasks
}

// Counts returns the number of tasks per status across the plan.
func (p *Plan) Counts() map[TaskStatus]int {
	counts := make(map[TaskStatus]int)
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			counts[t.Status]++
		}
	}
	return counts
}

// Normalize fills unset phase and task statuses with pending.
func (p *Plan) Normalize() {
	for i := range p.Phases {
		ph := &p.Phases[i]
		if ph.Status == "" {
			ph.Status = PhasePending
		}
		for j := range ph.Tasks {
			if ph.Tasks[j].Status == "" {
				ph.Tasks[j].Status = TaskPending
			}
		}
	}
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Phases = make([]Phase, len(p.Phases))
	for i, ph := range p.Phases {
		cp.Phases[i] = ph
		cp.Phases[i].Tasks = make([]Task, len(ph.Tasks))
		for j, t := range ph.Tasks {
			cp.Phases[i].Tasks[j] = t.clone()
		}
	}
	return &cp
}

func (t Task) clone() Task {
	t.DependsOn = slices.Clone(t.DependsOn)
	return t
}

// Declaration is an explicit domain:key = value fact asserted by an agent.
type Declaration struct {
	Domain string `json:"domain"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// QualifiedKey returns "domain:key".
func (d Declaration) QualifiedKey() string {
	return d.Domain + ":" + d.Key
}

// AgentOutput is what a completed task produced.
type AgentOutput struct {
	TaskID       string        `json:"task_id"`
	Agent        string        `json:"agent"`
	Output       string        `json:"output"`
	Declarations []Declaration `json:"declarations,omitempty"`
}
