// Package topologystore defines the Dependency Index of a resolver instance:
// the forward (dependencies) and reverse (dependents) adjacency between its
// nodes.
//
// # Why Topology Store Exists
//
// Edges are never supplied by the host. They are derived from the references
// found in node inputs, and they change whenever an input does. Keeping them
// apart from the node table (nodestore) lets the evaluator answer "who
// depends on X" without scanning every input.
//
// # Invariants
//
//   - The dependents map is the exact transpose of the dependency map. Every
//     mutation updates both directions under one lock.
//   - Edges only connect nodes known to the store. A reference to an id the
//     store does not hold is recorded as an *absent reference* instead, so
//     that registering that id later turns it into a real edge.
//
// # Lifecycle and Usage
//
// The store is created per resolver instance, mutated by graph.Set/Delete and
// by dependency refreshes at the start of every evaluation, and discarded
// with the instance.
package topologystore

import (
	"context"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
)

// Store is the interface for the Dependency Index.
//
// All returned slices are fresh copies in lexical order.
type Store interface {
	// AddNode registers id. Nodes that held an absent reference to id become
	// its dependents and are returned.
	AddNode(ctx context.Context, id nodeid.ID) []nodeid.ID

	// RemoveNode unregisters id and drops its own edges and absent
	// references. Edges pointing at id from its dependents are converted to
	// absent references. It returns the former dependents and the former
	// dependencies of id.
	RemoveNode(ctx context.Context, id nodeid.ID) (dependents, dependencies []nodeid.ID, err error)

	// HasNode reports whether id is registered.
	HasNode(ctx context.Context, id nodeid.ID) bool

	// SetDependencies replaces the references held by id. Registered targets
	// become edges, the others absent references. It returns the nodes whose
	// dependent set changed.
	SetDependencies(ctx context.Context, id nodeid.ID, refs []nodeid.ID) ([]nodeid.ID, error)

	// DependenciesOf returns the registered nodes id depends on.
	DependenciesOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error)

	// DependentsOf returns the registered nodes that depend on id.
	DependentsOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error)

	// MissingOf returns the ids id references that are not registered.
	MissingOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error)

	// Consistent verifies the store's invariants and describes the first
	// violation found.
	Consistent(ctx context.Context) error
}
