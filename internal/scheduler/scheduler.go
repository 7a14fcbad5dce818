// Package scheduler orders plan tasks and groups them into batches that can
// run concurrently.
//
// Ordering is a level-by-level topological sort over the DependsOn edges.
// Batching is greedy: each batch takes, in sorted order, every task whose
// dependencies were placed in an earlier batch, unless the task would share a
// file path with a task already in the batch or is not parallelizable.
// Dependencies on tasks outside the input set are ignored by ordering and
// batching; RecomputeSchedule treats them as unmet.
package scheduler

import (
	"slices"

	"github.com/Iron-Ham/ensemble/internal/errors"
	"github.com/Iron-Ham/ensemble/internal/paths"
	"github.com/Iron-Ham/ensemble/internal/plan"
)

// Batch is a group of tasks that may execute at the same time.
type Batch struct {
	Index int
	Tasks []plan.Task
	// EstimatedMinutes is the longest member estimate, since members run in parallel.
	EstimatedMinutes int
}

// TaskIDs returns the ids of the batch members in order.
func (b Batch) TaskIDs() []string {
	ids := make([]string, len(b.Tasks))
	for i, t := range b.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// graph is the dependency graph restricted to the input task set.
type graph struct {
	tasks      []plan.Task
	index      map[string]int
	deps       [][]int // deps[i]: indices task i depends on
	dependents [][]int // dependents[i]: indices depending on task i
}

func newGraph(tasks []plan.Task) *graph {
	g := &graph{
		tasks:      tasks,
		index:      make(map[string]int, len(tasks)),
		deps:       make([][]int, len(tasks)),
		dependents: make([][]int, len(tasks)),
	}
	for i, t := range tasks {
		if _, dup := g.index[t.ID]; !dup {
			g.index[t.ID] = i
		}
	}
	for i, t := range tasks {
		seen := make(map[int]bool, len(t.DependsOn))
		for _, depID := range t.DependsOn {
			j, ok := g.index[depID]
			if !ok || seen[j] {
				continue
			}
			seen[j] = true
			g.deps[i] = append(g.deps[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
	}
	return g
}

// TopologicalSort returns the tasks ordered so that every task comes after
// the tasks it depends on. Tasks at the same depth keep their input order.
// A cycle yields an *errors.CycleError naming exactly the tasks on a cycle.
func TopologicalSort(tasks []plan.Task) ([]plan.Task, error) {
	g := newGraph(tasks)

	inDegree := make([]int, len(tasks))
	var queue []int
	for i := range tasks {
		inDegree[i] = len(g.deps[i])
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]plan.Task, 0, len(tasks))
	placed := make([]bool, len(tasks))
	for len(queue) > 0 {
		slices.Sort(queue)
		var next []int
		for _, i := range queue {
			order = append(order, tasks[i])
			placed[i] = true
			for _, d := range g.dependents[i] {
				inDegree[d]--
				if inDegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		queue = next
	}

	if len(order) < len(tasks) {
		return nil, errors.NewCycleError(g.cycleMembers(placed))
	}
	return order, nil
}

// cycleMembers runs Tarjan's strongly connected components algorithm over
// the nodes Kahn's algorithm could not place and returns the ids of nodes in
// a component of size > 1 or with a self edge, in input order.
func (g *graph) cycleMembers(placed []bool) []string {
	n := len(g.tasks)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	member := make([]bool, n)
	counter := 0

	var strongConnect func(v int)
	strongConnect = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.deps[v] {
			if placed[w] {
				continue
			}
			if index[w] == -1 {
				strongConnect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
			return
		}
		var component []int
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		if len(component) > 1 || slices.Contains(g.deps[v], v) {
			for _, w := range component {
				member[w] = true
			}
		}
	}

	for v := range n {
		if !placed[v] && index[v] == -1 {
			strongConnect(v)
		}
	}

	var ids []string
	for i, t := range g.tasks {
		if member[i] {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// BuildBatches sorts the tasks and groups them into sequential batches.
func BuildBatches(tasks []plan.Task) ([]Batch, error) {
	sorted, err := TopologicalSort(tasks)
	if err != nil {
		return nil, err
	}
	inSet := make(map[string]bool, len(sorted))
	for _, t := range sorted {
		inSet[t.ID] = true
	}

	assigned := make(map[string]bool, len(sorted))
	remaining := sorted
	var batches []Batch
	for len(remaining) > 0 {
		var (
			members  []plan.Task
			deferred []plan.Task
			claimed  = make(map[string]bool)
			solo     bool
			batchIDs []string
		)
		for _, t := range remaining {
			if solo || !depsAssigned(t, inSet, assigned) {
				deferred = append(deferred, t)
				continue
			}
			if !t.Parallelizable {
				if len(members) == 0 {
					members = append(members, t)
					solo = true
				} else {
					deferred = append(deferred, t)
				}
				continue
			}
			taskPaths := paths.Extract(t.Text())
			if slices.ContainsFunc(taskPaths, func(p string) bool { return claimed[p] }) {
				deferred = append(deferred, t)
				continue
			}
			for _, p := range taskPaths {
				claimed[p] = true
			}
			members = append(members, t)
		}

		// The first remaining task in sorted order always has its
		// dependencies assigned, so members is never empty here.
		batch := Batch{Index: len(batches), Tasks: members}
		for _, t := range members {
			batch.EstimatedMinutes = max(batch.EstimatedMinutes, t.EstimatedMinutes)
			batchIDs = append(batchIDs, t.ID)
		}
		for _, id := range batchIDs {
			assigned[id] = true
		}
		batches = append(batches, batch)
		remaining = deferred
	}
	return batches, nil
}

// depsAssigned reports whether every in-set dependency of t already sits in
// an earlier batch.
func depsAssigned(t plan.Task, inSet, assigned map[string]bool) bool {
	for _, depID := range t.DependsOn {
		if inSet[depID] && !assigned[depID] {
			return false
		}
	}
	return true
}

// CanRunInParallel reports whether a and b may share a batch.
func CanRunInParallel(a, b plan.Task) bool {
	if !a.Parallelizable || !b.Parallelizable {
		return false
	}
	if a.DependsOnID(b.ID) || b.DependsOnID(a.ID) {
		return false
	}
	return len(sharedPaths(a, b)) == 0
}

func sharedPaths(a, b plan.Task) []string {
	bPaths := paths.Extract(b.Text())
	var shared []string
	for _, p := range paths.Extract(a.Text()) {
		if slices.Contains(bPaths, p) {
			shared = append(shared, p)
		}
	}
	return shared
}

// ConflictKind identifies why two tasks cannot run together.
type ConflictKind string

const (
	ConflictDependency ConflictKind = "dependency"
	ConflictFile       ConflictKind = "file"
)

// Conflict records a pair of tasks that must not share a batch. For a
// dependency conflict TaskA depends on TaskB.
type Conflict struct {
	Kind  ConflictKind
	TaskA string
	TaskB string
	Path  string // Set for file conflicts
}

// DetectConflicts enumerates every pair of tasks and reports one conflict per
// direction of each dependency edge and one per shared file path.
func DetectConflicts(tasks []plan.Task) []Conflict {
	var conflicts []Conflict
	for i := 0; i < len(tasks); i++ {
		for j := i + 1; j < len(tasks); j++ {
			a, b := tasks[i], tasks[j]
			if a.DependsOnID(b.ID) {
				conflicts = append(conflicts, Conflict{Kind: ConflictDependency, TaskA: a.ID, TaskB: b.ID})
			}
			if b.DependsOnID(a.ID) {
				conflicts = append(conflicts, Conflict{Kind: ConflictDependency, TaskA: b.ID, TaskB: a.ID})
			}
			for _, p := range sharedPaths(a, b) {
				conflicts = append(conflicts, Conflict{Kind: ConflictFile, TaskA: a.ID, TaskB: b.ID, Path: p})
			}
		}
	}
	return conflicts
}
