// Package executor defines the contract of the Evaluator: the component that
// drives a resolver instance's workset to a fixed point.
package executor

import (
	"context"
	"errors"

	"github.com/specialistvlad/liveresolver/internal/cancelscope"
	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// ErrCancelled is returned by Process when the token it ran under was
// cancelled. Nodes whose computations were discarded are back in the
// workset.
var ErrCancelled = errors.New("evaluation cancelled")

// Executor is responsible for resolving the nodes of one instance.
//
// All methods must be called from the instance's own goroutine.
type Executor interface {
	// AddAllToWorkset queues every node of the graph, in registration order.
	AddAllToWorkset(ctx context.Context)

	// Invalidate queues the given nodes and renews the cancellation scope so
	// that computations started before the call can no longer land.
	Invalidate(ctx context.Context, ids ...nodeid.ID)

	// Queued reports whether id awaits (re)computation.
	Queued(id nodeid.ID) bool

	// Process runs queued nodes until the workset is empty (nil) or token is
	// cancelled (ErrCancelled). Other errors indicate a broken graph.
	Process(ctx context.Context, token *cancelscope.Token) error
}

// Result is the outcome of one node, as streamed to the host.
type Result struct {
	NodeID nodeid.ID
	// State is node.Resolved or node.Failed.
	State  node.State
	Output cty.Value
	Err    error
}

// Emitter receives the evaluator's notifications. Calls happen on the
// instance goroutine, in the order events occur.
type Emitter interface {
	// EmitOutputs delivers one batch of node outcomes.
	EmitOutputs(ctx context.Context, results []Result)
	// EmitDependents reports the new dependent set of a node.
	EmitDependents(ctx context.Context, id nodeid.ID, dependents []nodeid.ID)
}
