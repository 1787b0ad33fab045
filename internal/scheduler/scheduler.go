package scheduler

import (
	"context"

	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/graph"
	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
)

// DefaultScheduler is the reference implementation of the Scheduler interface.
type DefaultScheduler struct {
	graph graph.Graph
}

// New creates a new default scheduler for the given graph.
func New(g graph.Graph) Scheduler {
	return &DefaultScheduler{graph: g}
}

// Ready implements the Scheduler interface.
func (s *DefaultScheduler) Ready(ctx context.Context, ws *Workset, limit int) []nodeid.ID {
	var ready []nodeid.ID
	for _, id := range ws.IDs() {
		if len(ready) >= limit {
			break
		}
		if s.isReady(ctx, ws, id) {
			ready = append(ready, id)
		}
	}
	return ready
}

func (s *DefaultScheduler) isReady(ctx context.Context, ws *Workset, id nodeid.ID) bool {
	n, ok := s.graph.Node(ctx, id)
	if !ok || n.State == node.Computing {
		return false
	}
	deps, err := s.graph.DependenciesOf(ctx, id)
	if err != nil {
		return false
	}
	for _, dep := range deps {
		if !s.satisfied(ctx, ws, dep) {
			return false
		}
	}
	return true
}

func (s *DefaultScheduler) satisfied(ctx context.Context, ws *Workset, dep nodeid.ID) bool {
	if ws.Has(dep) {
		return false
	}
	n, ok := s.graph.Node(ctx, dep)
	if !ok {
		// Absent dependencies are satisfied.
		return true
	}
	return n.State == node.Resolved
}

// Stuck implements the Scheduler interface.
func (s *DefaultScheduler) Stuck(ctx context.Context, ws *Workset) []Verdict {
	logger := ctxlog.FromContext(ctx)
	queued := ws.IDs()

	edges := make(map[nodeid.ID][]nodeid.ID, len(queued))
	for _, id := range queued {
		deps, err := s.graph.DependenciesOf(ctx, id)
		if err != nil {
			continue
		}
		for _, dep := range deps {
			if ws.Has(dep) {
				edges[id] = append(edges[id], dep)
			}
		}
	}

	component := stronglyConnected(queued, edges)
	inCycle := func(id nodeid.ID) bool {
		members := component[id]
		if len(members) > 1 {
			return true
		}
		for _, dep := range edges[id] {
			if dep == id {
				return true
			}
		}
		return false
	}

	verdicts := make([]Verdict, 0, len(queued))
	for _, id := range queued {
		if inCycle(id) {
			verdicts = append(verdicts, Verdict{NodeID: id, Cycle: cyclePath(id, edges, component[id])})
			continue
		}
		verdicts = append(verdicts, Verdict{NodeID: id, Upstream: s.blocker(ctx, ws, id)})
	}
	logger.Debug("Workset is stuck.", "queued", len(queued))
	return verdicts
}

// blocker returns the first dependency of id that is not satisfied.
func (s *DefaultScheduler) blocker(ctx context.Context, ws *Workset, id nodeid.ID) nodeid.ID {
	deps, _ := s.graph.DependenciesOf(ctx, id)
	for _, dep := range deps {
		if !s.satisfied(ctx, ws, dep) {
			return dep
		}
	}
	return id
}

// stronglyConnected runs Tarjan's algorithm over the given nodes and returns,
// for every node, the members of its component.
func stronglyConnected(ids []nodeid.ID, edges map[nodeid.ID][]nodeid.ID) map[nodeid.ID][]nodeid.ID {
	var (
		index   = 0
		indices = make(map[nodeid.ID]int, len(ids))
		lowlink = make(map[nodeid.ID]int, len(ids))
		onStack = make(map[nodeid.ID]bool, len(ids))
		stack   []nodeid.ID
		result  = make(map[nodeid.ID][]nodeid.ID, len(ids))
	)

	var visit func(v nodeid.ID)
	visit = func(v nodeid.ID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, seen := indices[w]; !seen {
				visit(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var members []nodeid.ID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				members = append(members, w)
				if w == v {
					break
				}
			}
			members = nodeid.Sorted(members)
			for _, m := range members {
				result[m] = members
			}
		}
	}

	for _, id := range ids {
		if _, seen := indices[id]; !seen {
			visit(id)
		}
	}
	return result
}

// cyclePath finds the shortest dependency path from start back to itself
// that stays within start's component.
func cyclePath(start nodeid.ID, edges map[nodeid.ID][]nodeid.ID, members []nodeid.ID) []nodeid.ID {
	inComponent := make(map[nodeid.ID]bool, len(members))
	for _, m := range members {
		inComponent[m] = true
	}

	prev := make(map[nodeid.ID]nodeid.ID)
	queue := []nodeid.ID{start}
	visited := map[nodeid.ID]bool{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range nodeid.Sorted(edges[cur]) {
			if !inComponent[next] {
				continue
			}
			if next == start {
				path := []nodeid.ID{start}
				for at := cur; at != start; at = prev[at] {
					path = append(path, at)
				}
				path = append(path, start)
				// path was collected backwards from the end; reverse the middle.
				for i, j := 1, len(path)-2; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			if !visited[next] {
				visited[next] = true
				prev[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return []nodeid.ID{start, start}
}
