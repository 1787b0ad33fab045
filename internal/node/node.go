// Package node defines a single vertex of a resolver instance's graph.
package node

import (
	"fmt"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// State is the resolution state of a node.
type State int32

const (
	// Pending means the node's output is missing or stale and it awaits
	// (re)computation.
	Pending State = iota
	// Computing means a computation for the node is in flight.
	Computing
	// Resolved means Output holds the result for the current input and the
	// current outputs of its dependencies.
	Resolved
	// Failed means the node's computation, an upstream computation, or cycle
	// detection produced an error. Err holds it.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Computing:
		return "computing"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Node is a point-in-time copy of one node's record. Stores hand out copies,
// so mutating a Node does not affect the store.
type Node struct {
	ID nodeid.ID
	// Input is the host-provided value, possibly containing references.
	Input cty.Value
	// Output is the last computed value. It is kept while the node is pending
	// again so the host can keep showing it; HasOutput tells whether one was
	// ever produced.
	Output    cty.Value
	HasOutput bool
	State     State
	Err       error
}

// New creates a pending node with the given input.
func New(id nodeid.ID, input cty.Value) *Node {
	return &Node{
		ID:    id,
		Input: input,
		State: Pending,
	}
}
