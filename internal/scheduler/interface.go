package scheduler

import (
	"context"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
)

// Scheduler analyzes a graph and a workset to decide what runs next.
//
// # Readiness
//
// A queued node is ready when every dependency that exists is Resolved and
// not itself queued. References to nodes that do not exist are satisfied:
// the computation observes them as absent.
//
// # Stuck Worksets
//
// When nothing is ready and nothing is in flight, the remaining queued nodes
// can never run. Stuck classifies each of them: nodes on a dependency cycle
// (a strongly connected component with more than one node, or a node
// referencing itself) get the cycle path, the others the dependency that
// blocks them.
type Scheduler interface {
	// Ready returns up to limit ready nodes in workset order.
	Ready(ctx context.Context, ws *Workset, limit int) []nodeid.ID

	// Stuck classifies every queued node. It must only be called when Ready
	// returns nothing and no computation is in flight.
	Stuck(ctx context.Context, ws *Workset) []Verdict
}

// Verdict explains why a stuck node cannot be computed. Exactly one of
// Cycle and Upstream is set.
type Verdict struct {
	NodeID nodeid.ID
	// Cycle is a dependency path from NodeID back to itself.
	Cycle []nodeid.ID
	// Upstream is a dependency of NodeID that will not resolve.
	Upstream nodeid.ID
}
