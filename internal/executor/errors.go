package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
)

// Error kinds as reported to the host.
const (
	KindCompute  = "compute"
	KindCycle    = "cycle"
	KindUpstream = "upstream"
)

// ComputeError is recorded on a node whose compute function failed.
type ComputeError struct {
	NodeID nodeid.ID
	Err    error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.NodeID, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}

// CycleError is recorded on every node of a dependency cycle.
type CycleError struct {
	NodeID nodeid.ID
	// Cycle is a dependency path starting and ending at NodeID.
	Cycle []nodeid.ID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("node %q is part of a dependency cycle: %s", e.NodeID, strings.Join(nodeid.Strings(e.Cycle), " -> "))
}

// UpstreamError is recorded on a node that was not computed because a node
// it depends on, directly or transitively, failed.
type UpstreamError struct {
	NodeID nodeid.ID
	// Upstream is the failed node that caused this failure.
	Upstream nodeid.ID
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("node %q not computed: upstream node %q failed", e.NodeID, e.Upstream)
}

// Kind classifies a node error as one of KindCompute, KindCycle or
// KindUpstream. Unclassified errors count as compute errors.
func Kind(err error) string {
	var cycleErr *CycleError
	var upstreamErr *UpstreamError
	switch {
	case errors.As(err, &cycleErr):
		return KindCycle
	case errors.As(err, &upstreamErr):
		return KindUpstream
	default:
		return KindCompute
	}
}
