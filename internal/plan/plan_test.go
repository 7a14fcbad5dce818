package plan

import (
	"testing"
)

func samplePlan() *Plan {
	return &Plan{
		ID:   "demo",
		Name: "Demo",
		Phases: []Phase{
			{
				ID:     "setup",
				Status: PhasePending,
				Tasks: []Task{
					{ID: "a", Agent: "claude", Status: TaskCompleted, Parallelizable: true},
				},
			},
			{
				ID:     "build",
				Status: PhasePending,
				Tasks: []Task{
					{ID: "b", Agent: "copilot", DependsOn: []string{"a"}, Status: TaskPending, Parallelizable: true},
					{ID: "c", Agent: "claude", DependsOn: []string{"a"}, Status: TaskFailed, Parallelizable: true},
				},
			},
		},
	}
}

func TestTaskStatus(t *testing.T) {
	tests := []struct {
		status    TaskStatus
		terminal  bool
		satisfies bool
	}{
		{TaskPending, false, false},
		{TaskRunning, false, false},
		{TaskCompleted, true, true},
		{TaskFailed, true, false},
		{TaskSkipped, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
			if got := tt.status.Satisfies(); got != tt.satisfies {
				t.Errorf("Satisfies() = %v, want %v", got, tt.satisfies)
			}
		})
	}
}

func TestPlan_Task(t *testing.T) {
	p := samplePlan()

	task := p.Task("b")
	if task == nil {
		t.Fatal("Task(b) = nil")
	}
	task.Status = TaskRunning
	if p.Phases[1].Tasks[0].Status != TaskRunning {
		t.Error("Task() should return a pointer into the plan")
	}
	if p.Task("missing") != nil {
		t.Error("Task(missing) should be nil")
	}
}

func TestPlan_AllTasksReturnsCopies(t *testing.T) {
	p := samplePlan()

	tasks := p.AllTasks()
	if len(tasks) != 3 {
		t.Fatalf("AllTasks() returned %d tasks, want 3", len(tasks))
	}
	tasks[1].DependsOn[0] = "mutated"
	if p.Phases[1].Tasks[0].DependsOn[0] != "a" {
		t.Error("AllTasks() should deep-copy DependsOn")
	}
}

func TestPlan_Counts(t *testing.T) {
	counts := samplePlan().Counts()
	if counts[TaskCompleted] != 1 || counts[TaskPending] != 1 || counts[TaskFailed] != 1 {
		t.Errorf("Counts() = %v", counts)
	}
}

func TestPlan_Normalize(t *testing.T) {
	p := &Plan{ID: "p", Phases: []Phase{
		{ID: "one", Tasks: []Task{{ID: "a"}, {ID: "b", Status: TaskCompleted}}},
		{ID: "two", Status: PhaseCompleted, Tasks: []Task{{ID: "c", Status: TaskFailed}}},
	}}
	p.Normalize()

	tests := []struct {
		id   string
		want TaskStatus
	}{
		{"a", TaskPending},
		{"b", TaskCompleted},
		{"c", TaskFailed},
	}
	for _, tt := range tests {
		if got := p.Task(tt.id).Status; got != tt.want {
			t.Errorf("Task(%q).Status = %q, want %q", tt.id, got, tt.want)
		}
	}
	if p.Phases[0].Status != PhasePending {
		t.Errorf("Phases[0].Status = %q, want %q", p.Phases[0].Status, PhasePending)
	}
	if p.Phases[1].Status != PhaseCompleted {
		t.Errorf("Phases[1].Status = %q, want %q", p.Phases[1].Status, PhaseCompleted)
	}
}

func TestPlan_Clone(t *testing.T) {
	p := samplePlan()
	cp := p.Clone()

	cp.Phases[1].Tasks[0].Status = TaskCompleted
	cp.Phases[1].Tasks[0].DependsOn[0] = "z"
	cp.Phases[0].Status = PhaseCompleted

	if p.Phases[1].Tasks[0].Status != TaskPending {
		t.Error("Clone() shares task storage")
	}
	if p.Phases[1].Tasks[0].DependsOn[0] != "a" {
		t.Error("Clone() shares DependsOn storage")
	}
	if p.Phases[0].Status != PhasePending {
		t.Error("Clone() shares phase storage")
	}

	var nilPlan *Plan
	if nilPlan.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}

func TestTask_Helpers(t *testing.T) {
	task := Task{ID: "b", Label: "Build API", Prompt: "write src/api.ts", DependsOn: []string{"a"}}

	if got := task.Text(); got != "Build API\nwrite src/api.ts" {
		t.Errorf("Text() = %q", got)
	}
	if !task.DependsOnID("a") || task.DependsOnID("c") {
		t.Error("DependsOnID() mismatch")
	}
}
