package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/nodestore"
	"github.com/specialistvlad/liveresolver/internal/topologystore"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Manager implements Graph by composing a topology store and a node store.
type Manager struct {
	topology topologystore.Store
	nodes    nodestore.Store

	mu      sync.Mutex
	changed *nodeid.Set
}

// New creates a new graph manager over the given stores.
func New(ts topologystore.Store, ns nodestore.Store) Graph {
	return &Manager{
		topology: ts,
		nodes:    ns,
		changed:  nodeid.NewSet(),
	}
}

func (m *Manager) recordChanged(ids ...nodeid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.changed.Add(id)
	}
}

// Set replaces the input of id and invalidates its dependent closure.
func (m *Manager) Set(ctx context.Context, id nodeid.ID, input cty.Value) ([]nodeid.ID, error) {
	logger := ctxlog.FromContext(ctx)

	if m.nodes.AddNode(ctx, id, input) {
		promoted := m.topology.AddNode(ctx, id)
		if len(promoted) > 0 {
			m.recordChanged(id)
		}
		logger.Debug("Node created.", "node_id", id, "promoted_referrers", len(promoted))
	} else if err := m.nodes.SetInput(ctx, id, input); err != nil {
		return nil, err
	}

	affected := append([]nodeid.ID{id}, m.TransitiveDependents(ctx, id)...)
	affected = dedupe(affected)
	for _, a := range affected {
		if err := m.nodes.SetStatus(ctx, a, node.Pending); err != nil {
			return nil, err
		}
	}
	logger.Debug("Node input set.", "node_id", id, "invalidated", len(affected))
	return affected, nil
}

// Delete removes id and invalidates its former dependents.
func (m *Manager) Delete(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error) {
	if !m.nodes.Has(ctx, id) {
		return nil, fmt.Errorf("cannot delete %q: %w", id, ErrNodeNotFound)
	}

	// The closure must be computed while id's edges still exist.
	affected := m.TransitiveDependents(ctx, id)

	_, formerDeps, err := m.topology.RemoveNode(ctx, id)
	if err != nil {
		return nil, err
	}
	m.nodes.RemoveNode(ctx, id)
	m.recordChanged(formerDeps...)

	var out []nodeid.ID
	for _, a := range affected {
		if a == id {
			continue
		}
		if err := m.nodes.SetStatus(ctx, a, node.Pending); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	ctxlog.FromContext(ctx).Debug("Node deleted.", "node_id", id, "invalidated", len(out))
	return out, nil
}

// RefreshDependencies re-derives the edges of id from its input.
func (m *Manager) RefreshDependencies(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error) {
	input, err := m.nodes.GetInput(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := m.topology.SetDependencies(ctx, id, value.References(input))
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		m.recordChanged(changed...)
		ctxlog.FromContext(ctx).Debug("Dependencies refreshed.", "node_id", id, "changed_dependent_sets", changed)
	}
	return changed, nil
}

// Node returns a copy of the node's record.
func (m *Manager) Node(ctx context.Context, id nodeid.ID) (node.Node, bool) {
	return m.nodes.Get(ctx, id)
}

// Has reports whether id exists.
func (m *Manager) Has(ctx context.Context, id nodeid.ID) bool {
	return m.nodes.Has(ctx, id)
}

// IDs returns all node ids in registration order.
func (m *Manager) IDs(ctx context.Context) []nodeid.ID {
	return m.nodes.IDs(ctx)
}

// DependenciesOf returns the existing nodes id depends on.
func (m *Manager) DependenciesOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error) {
	deps, err := m.topology.DependenciesOf(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, err)
	}
	return deps, nil
}

// DependentsOf returns the existing nodes depending on id.
func (m *Manager) DependentsOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error) {
	dependents, err := m.topology.DependentsOf(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, err)
	}
	return dependents, nil
}

// MissingOf returns the absent ids referenced by id.
func (m *Manager) MissingOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error) {
	missing, err := m.topology.MissingOf(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, err)
	}
	return missing, nil
}

// TransitiveDependents walks dependent edges breadth-first from ids.
func (m *Manager) TransitiveDependents(ctx context.Context, ids ...nodeid.ID) []nodeid.ID {
	visited := nodeid.NewSet()
	queue := append([]nodeid.ID(nil), ids...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		dependents, err := m.topology.DependentsOf(ctx, cur)
		if err != nil {
			continue
		}
		for _, d := range dependents {
			if visited.Add(d) {
				queue = append(queue, d)
			}
		}
	}
	return visited.Slice()
}

// MarkPending transitions a node back to Pending.
func (m *Manager) MarkPending(ctx context.Context, id nodeid.ID) error {
	return m.nodes.SetStatus(ctx, id, node.Pending)
}

// MarkComputing transitions a node to Computing.
func (m *Manager) MarkComputing(ctx context.Context, id nodeid.ID) error {
	return m.nodes.SetStatus(ctx, id, node.Computing)
}

// MarkResolved records the output and transitions the node to Resolved.
func (m *Manager) MarkResolved(ctx context.Context, id nodeid.ID, output cty.Value) error {
	if err := m.nodes.SetOutput(ctx, id, output); err != nil {
		return err
	}
	return m.nodes.SetStatus(ctx, id, node.Resolved)
}

// MarkFailed records the error and transitions the node to Failed.
func (m *Manager) MarkFailed(ctx context.Context, id nodeid.ID, nodeErr error) error {
	if err := m.nodes.SetError(ctx, id, nodeErr); err != nil {
		return err
	}
	return m.nodes.SetStatus(ctx, id, node.Failed)
}

// TakeDependentChanges drains the recorded dependent-set changes.
func (m *Manager) TakeDependentChanges(ctx context.Context) []nodeid.ID {
	m.mu.Lock()
	pending := m.changed.Slice()
	m.changed = nodeid.NewSet()
	m.mu.Unlock()

	out := pending[:0]
	for _, id := range pending {
		if m.nodes.Has(ctx, id) {
			out = append(out, id)
		}
	}
	return out
}

// Consistent verifies that the stores agree on the node set and that the
// dependency index holds its invariants.
func (m *Manager) Consistent(ctx context.Context) error {
	for _, id := range m.nodes.IDs(ctx) {
		if !m.topology.HasNode(ctx, id) {
			return fmt.Errorf("node %q is missing from the dependency index", id)
		}
	}
	return m.topology.Consistent(ctx)
}

func dedupe(ids []nodeid.ID) []nodeid.ID {
	return nodeid.NewSet(ids...).Slice()
}
