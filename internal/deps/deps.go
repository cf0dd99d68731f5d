// Package deps answers dependency questions over an in-memory task set:
// whether a new edge closes a cycle and whether a task is still blocked.
// Nothing here performs I/O or modifies the tasks it is given.
package deps

import "mission-control/board/internal/models"

// Graph indexes tasks by id.
type Graph map[models.TaskID]*models.Task

func NewGraph(tasks []models.Task) Graph {
	g := make(Graph, len(tasks))
	for i := range tasks {
		g[tasks[i].ID] = &tasks[i]
	}
	return g
}

// Blocker is an unsatisfied dependency. Task is nil when the referenced
// task does not exist.
type Blocker struct {
	ID   models.TaskID `json:"id"`
	Task *models.Task  `json:"task,omitempty"`
}

// WouldCreateCycle reports whether adding the edge taskID -> candidate would
// make taskID depend on itself, directly or transitively.
func WouldCreateCycle(taskID, candidate models.TaskID, tasks []models.Task) bool {
	return NewGraph(tasks).WouldCreateCycle(taskID, candidate)
}

func (g Graph) WouldCreateCycle(taskID, candidate models.TaskID) bool {
	if taskID == candidate {
		return true
	}
	return g.reaches(candidate, taskID)
}

// reaches walks dependsOn edges from start and reports whether target is
// reachable. The visited set bounds the walk even on graphs that already
// contain a cycle.
func (g Graph) reaches(start, target models.TaskID) bool {
	visited := map[models.TaskID]bool{start: true}
	stack := []models.TaskID{start}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		task, ok := g[id]
		if !ok {
			continue
		}
		for _, dep := range task.DependsOn {
			if dep == target {
				return true
			}
			if !visited[dep] {
				visited[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// IsBlocked reports whether any of task's dependencies is missing or has not
// reached models.SatisfiedColumn.
func IsBlocked(task models.Task, tasks []models.Task) bool {
	return NewGraph(tasks).IsBlocked(task)
}

func (g Graph) IsBlocked(task models.Task) bool {
	for _, dep := range task.DependsOn {
		if !g.satisfied(dep) {
			return true
		}
	}
	return false
}

// BlockingTasks lists task's unsatisfied dependencies in dependsOn order.
func BlockingTasks(task models.Task, tasks []models.Task) []Blocker {
	return NewGraph(tasks).BlockingTasks(task)
}

func (g Graph) BlockingTasks(task models.Task) []Blocker {
	var out []Blocker
	for _, dep := range task.DependsOn {
		if g.satisfied(dep) {
			continue
		}
		b := Blocker{ID: dep}
		if t, ok := g[dep]; ok {
			c := t.Clone()
			b.Task = &c
		}
		out = append(out, b)
	}
	return out
}

func (g Graph) satisfied(id models.TaskID) bool {
	t, ok := g[id]
	return ok && t.Column == models.SatisfiedColumn
}

// Dependents returns the ids of tasks that list id in their dependsOn.
func Dependents(id models.TaskID, tasks []models.Task) []models.TaskID {
	var out []models.TaskID
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if dep == id {
				out = append(out, t.ID)
				break
			}
		}
	}
	return out
}
