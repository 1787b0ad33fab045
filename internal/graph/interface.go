package graph

import (
	"context"

	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/nodestore"
	"github.com/zclconf/go-cty/cty"
)

// ErrNodeNotFound is returned when an operation names a node the graph does
// not hold.
var ErrNodeNotFound = nodestore.ErrNotFound

// Graph is a unified interface over a resolver instance's node table and
// dependency index.
//
// # Thread-Safety
//
// Implementations MUST be safe for concurrent reads. Writes come from the
// owning instance's goroutine only.
type Graph interface {
	// Set replaces the input of id, creating the node if needed, and marks
	// the node and its transitive dependents pending. When the node is new,
	// nodes that referenced the missing id become its dependents first.
	// It returns every affected id, starting with id itself.
	Set(ctx context.Context, id nodeid.ID, input cty.Value) ([]nodeid.ID, error)

	// Delete removes id. Its former dependents and their transitive
	// dependents become pending and now observe id as absent. The affected
	// ids are returned. Deleting an unknown id fails with ErrNodeNotFound.
	Delete(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error)

	// RefreshDependencies re-derives the edges of id from its current input.
	// It returns the nodes whose dependent set changed.
	RefreshDependencies(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error)

	// Node returns a copy of the node's record.
	Node(ctx context.Context, id nodeid.ID) (node.Node, bool)

	// Has reports whether id exists.
	Has(ctx context.Context, id nodeid.ID) bool

	// IDs returns all node ids in registration order.
	IDs(ctx context.Context) []nodeid.ID

	// DependenciesOf returns the existing nodes id currently depends on.
	DependenciesOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error)

	// DependentsOf returns the existing nodes currently depending on id.
	DependentsOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error)

	// MissingOf returns the ids referenced by id that do not exist.
	MissingOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error)

	// TransitiveDependents returns every node reachable from ids through
	// dependent edges, excluding ids themselves unless reachable, in
	// breadth-first order.
	TransitiveDependents(ctx context.Context, ids ...nodeid.ID) []nodeid.ID

	// MarkPending transitions a node back to Pending. The last output is kept.
	MarkPending(ctx context.Context, id nodeid.ID) error

	// MarkComputing transitions a node to Computing.
	MarkComputing(ctx context.Context, id nodeid.ID) error

	// MarkResolved records the output and transitions the node to Resolved.
	MarkResolved(ctx context.Context, id nodeid.ID, output cty.Value) error

	// MarkFailed records the error and transitions the node to Failed.
	MarkFailed(ctx context.Context, id nodeid.ID, nodeErr error) error

	// TakeDependentChanges returns, and forgets, the ids whose dependent set
	// changed since the last call. Ids deleted in the meantime are omitted.
	TakeDependentChanges(ctx context.Context) []nodeid.ID

	// Consistent verifies that both stores agree and that the dependency
	// index is internally consistent.
	Consistent(ctx context.Context) error
}
