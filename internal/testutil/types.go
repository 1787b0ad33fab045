package testutil

import (
	"time"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// ExecutionRecord holds what a single computation saw and when it ran.
type ExecutionRecord struct {
	ID    nodeid.ID
	Input cty.Value
	Deps  map[nodeid.ID]cty.Value
	Start time.Time
	End   time.Time
	// Cancelled reports whether the computation's context was done when it
	// returned.
	Cancelled bool
}
