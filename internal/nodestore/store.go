// Package nodestore defines the Node Table of a resolver instance: keyed
// storage of each node's current input, last-known output, state and error.
//
// # Why Node Store Exists
//
// The node store keeps the **mutable per-node record** apart from the
// **dependency structure** managed by topologystore. The evaluator writes
// states and outputs here at a high rate while the dependency index only
// changes when inputs change.
//
// # Lifecycle and Usage
//
// The node store is:
//  1. **Created** once per resolver instance (never persisted)
//  2. **Populated** from the create-resolver snapshot
//  3. **Mutated** by the host (inputs, via graph.Set/Delete) and by the
//     evaluator (states, outputs, errors)
//  4. **Discarded** when the instance is disposed
//
// # State Transitions
//
//	Pending → Computing → Resolved (with output) OR Failed (with error)
//	Computing → Pending (cancelled)
//	any → Pending (invalidated)
package nodestore

import (
	"context"
	"errors"

	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// ErrNotFound is returned when an operation names a node the store does not hold.
var ErrNotFound = errors.New("node not found")

// Store is the interface for the Node Table.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use. Within a resolver instance
// all writes come from the instance's own goroutine, but observers (tests,
// the CLI) read concurrently.
type Store interface {
	// AddNode registers a pending node with the given input. It returns false
	// and leaves the store untouched if the id is already present.
	AddNode(ctx context.Context, id nodeid.ID, input cty.Value) bool

	// RemoveNode deletes the node's record. It returns false if it was absent.
	RemoveNode(ctx context.Context, id nodeid.ID) bool

	// Has reports whether the node exists.
	Has(ctx context.Context, id nodeid.ID) bool

	// IDs returns every node id in registration order.
	IDs(ctx context.Context) []nodeid.ID

	// Get returns a copy of the node's record.
	Get(ctx context.Context, id nodeid.ID) (node.Node, bool)

	// SetInput replaces the node's input.
	SetInput(ctx context.Context, id nodeid.ID, input cty.Value) error

	// GetInput returns the node's current input.
	GetInput(ctx context.Context, id nodeid.ID) (cty.Value, error)

	// SetStatus updates the node's state.
	SetStatus(ctx context.Context, id nodeid.ID, state node.State) error

	// GetStatus returns the node's state.
	GetStatus(ctx context.Context, id nodeid.ID) (node.State, error)

	// SetOutput records a computed output and clears any previous error.
	// It does not change the state.
	SetOutput(ctx context.Context, id nodeid.ID, output cty.Value) error

	// GetOutput returns the last recorded output. The boolean is false if the
	// node never produced one.
	GetOutput(ctx context.Context, id nodeid.ID) (cty.Value, bool, error)

	// SetError records why the node failed. It does not change the state.
	SetError(ctx context.Context, id nodeid.ID, nodeErr error) error

	// GetError returns the recorded failure, or nil.
	GetError(ctx context.Context, id nodeid.ID) (error, error)
}
