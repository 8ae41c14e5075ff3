// Package graph maintains the per-project task dependency graph and detects
// planning conflicts over it.
package graph

import (
	"sort"

	"projecthub/internal/domain"
)

// Graph maps a task to the edges it depends on. Edge order is insertion
// order, which keeps reported paths deterministic.
type Graph struct {
	edges map[string][]domain.Dependency
}

// New builds a graph from persisted edges.
func New(deps []domain.Dependency) *Graph {
	g := &Graph{edges: make(map[string][]domain.Dependency)}
	for _, d := range deps {
		if g.HasEdge(d.TaskID, d.DependsOnID) {
			continue
		}
		g.edges[d.TaskID] = append(g.edges[d.TaskID], d)
	}
	return g
}

// FromTasks builds a graph from the dependency lists carried on tasks.
func FromTasks(tasks []domain.Task) *Graph {
	var deps []domain.Dependency
	for _, t := range tasks {
		if len(t.Dependencies) > 0 {
			deps = append(deps, t.Dependencies...)
			continue
		}
		for _, id := range t.DependsOn {
			deps = append(deps, domain.Dependency{TaskID: t.ID, DependsOnID: id, Type: domain.DepMustComplete})
		}
	}
	return New(deps)
}

func (g *Graph) HasEdge(taskID, dependsOnID string) bool {
	for _, d := range g.edges[taskID] {
		if d.DependsOnID == dependsOnID {
			return true
		}
	}
	return false
}

// DependsOn lists the direct prerequisites of taskID.
func (g *Graph) DependsOn(taskID string) []string {
	var out []string
	for _, d := range g.edges[taskID] {
		out = append(out, d.DependsOnID)
	}
	return out
}

// Dependents lists tasks that directly depend on taskID.
func (g *Graph) Dependents(taskID string) []string {
	var out []string
	for _, edges := range g.edges {
		for _, d := range edges {
			if d.DependsOnID == taskID {
				out = append(out, d.TaskID)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Path returns a dependency path from -> ... -> to, or nil when to is not
// reachable from from.
func (g *Graph) Path(from, to string) []string {
	visited := make(map[string]bool)
	var walk func(id string, path []string) []string
	walk = func(id string, path []string) []string {
		path = append(path, id)
		if id == to && len(path) > 1 {
			return path
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		for _, d := range g.edges[id] {
			if found := walk(d.DependsOnID, path); found != nil {
				return found
			}
		}
		return nil
	}
	if from == to {
		for _, d := range g.edges[from] {
			if found := walk(d.DependsOnID, []string{from}); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(from, nil)
}

// AddDependency records that taskID depends on dependsOnID. An existing edge
// is left untouched and reported with added=false. On error the graph is
// unchanged.
func (g *Graph) AddDependency(taskID, dependsOnID string, typ domain.DependencyType) (bool, error) {
	if taskID == dependsOnID {
		return false, &domain.CircularDependencyError{TaskID: taskID, DependsOnID: dependsOnID, Path: []string{taskID, taskID}}
	}
	if g.HasEdge(taskID, dependsOnID) {
		return false, nil
	}
	if back := g.Path(dependsOnID, taskID); back != nil {
		return false, &domain.CircularDependencyError{
			TaskID:      taskID,
			DependsOnID: dependsOnID,
			Path:        append([]string{taskID}, back...),
		}
	}
	if typ == "" {
		typ = domain.DepMustComplete
	}
	g.edges[taskID] = append(g.edges[taskID], domain.Dependency{TaskID: taskID, DependsOnID: dependsOnID, Type: typ})
	return true, nil
}

// RemoveDependency deletes the edge taskID -> dependsOnID.
func (g *Graph) RemoveDependency(taskID, dependsOnID string) error {
	edges := g.edges[taskID]
	for i, d := range edges {
		if d.DependsOnID != dependsOnID {
			continue
		}
		rest := make([]domain.Dependency, 0, len(edges)-1)
		rest = append(rest, edges[:i]...)
		rest = append(rest, edges[i+1:]...)
		if len(rest) == 0 {
			delete(g.edges, taskID)
		} else {
			g.edges[taskID] = rest
		}
		return nil
	}
	return &domain.DependencyNotFoundError{TaskID: taskID, DependsOnID: dependsOnID}
}

// Edges returns every edge, grouped by dependent task in id order.
func (g *Graph) Edges() []domain.Dependency {
	ids := make([]string, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []domain.Dependency
	for _, id := range ids {
		out = append(out, g.edges[id]...)
	}
	return out
}

// InCycle reports whether taskID can reach itself.
func (g *Graph) InCycle(taskID string) bool {
	return g.Path(taskID, taskID) != nil
}
