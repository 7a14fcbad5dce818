package scheduler

import "github.com/Iron-Ham/ensemble/internal/plan"

// Blocked is a pending task still waiting on dependencies.
type Blocked struct {
	Task      plan.Task
	WaitingOn []string
}

// Snapshot partitions tasks by what can happen to them next.
// Ready, Blocked and Unreachable are disjoint and hold only pending tasks.
type Snapshot struct {
	Ready       []plan.Task
	Blocked     []Blocked
	Unreachable []plan.Task
	Completed   []plan.Task
	Running     []plan.Task
	Failed      []plan.Task
	Skipped     []plan.Task
}

// IsDone reports whether nothing is left to run or wait on.
func (s Snapshot) IsDone() bool {
	return len(s.Ready) == 0 && len(s.Blocked) == 0 && len(s.Running) == 0
}

// RecomputeSchedule builds a fresh Snapshot from the current task statuses.
// A pending task is ready when every dependency is completed or skipped; a
// dependency on an unknown id is never satisfied. Pending tasks downstream of
// a failed task are unreachable rather than blocked.
func RecomputeSchedule(tasks []plan.Task) Snapshot {
	var snap Snapshot
	status := make(map[string]plan.TaskStatus, len(tasks))
	for _, t := range tasks {
		status[t.ID] = t.Status
	}
	unreachable := unreachableSet(tasks)

	for _, t := range tasks {
		switch t.Status {
		case plan.TaskCompleted:
			snap.Completed = append(snap.Completed, t)
		case plan.TaskRunning:
			snap.Running = append(snap.Running, t)
		case plan.TaskFailed:
			snap.Failed = append(snap.Failed, t)
		case plan.TaskSkipped:
			snap.Skipped = append(snap.Skipped, t)
		default:
			if unreachable[t.ID] {
				snap.Unreachable = append(snap.Unreachable, t)
				continue
			}
			var waiting []string
			for _, depID := range t.DependsOn {
				if st, ok := status[depID]; !ok || !st.Satisfies() {
					waiting = append(waiting, depID)
				}
			}
			if len(waiting) == 0 {
				snap.Ready = append(snap.Ready, t)
			} else {
				snap.Blocked = append(snap.Blocked, Blocked{Task: t, WaitingOn: waiting})
			}
		}
	}
	return snap
}

// Unreachable returns, in input order, the ids of pending tasks that depend
// directly or transitively on a failed task.
func Unreachable(tasks []plan.Task) []string {
	set := unreachableSet(tasks)
	var ids []string
	for _, t := range tasks {
		if set[t.ID] {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// unreachableSet walks the reverse dependency graph breadth-first from every
// failed task. The walk passes through tasks in any status, but only pending
// tasks are marked.
func unreachableSet(tasks []plan.Task) map[string]bool {
	dependents := make(map[string][]string, len(tasks))
	var queue []string
	for _, t := range tasks {
		for _, depID := range t.DependsOn {
			dependents[depID] = append(dependents[depID], t.ID)
		}
		if t.Status == plan.TaskFailed {
			queue = append(queue, t.ID)
		}
	}
	status := make(map[string]plan.TaskStatus, len(tasks))
	for _, t := range tasks {
		status[t.ID] = t.Status
	}

	visited := make(map[string]bool, len(tasks))
	for _, id := range queue {
		visited[id] = true
	}
	marked := make(map[string]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range dependents[id] {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if status[dep] == plan.TaskPending || status[dep] == "" {
				marked[dep] = true
			}
			queue = append(queue, dep)
		}
	}
	return marked
}
