package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// ComputeRecorder wraps a compute function and records every call it makes.
// Calls for gated ids block until the gate is opened or the computation's
// context is cancelled.
type ComputeRecorder struct {
	next handlers.ComputeFunc

	mu      sync.Mutex
	records []ExecutionRecord
	gates   map[nodeid.ID]chan struct{}
	started chan nodeid.ID
}

// NewComputeRecorder creates a recorder delegating to next.
func NewComputeRecorder(next handlers.ComputeFunc) *ComputeRecorder {
	return &ComputeRecorder{
		next:    next,
		gates:   make(map[nodeid.ID]chan struct{}),
		started: make(chan nodeid.ID, 1024),
	}
}

// Gate makes computations of id block until Open is called.
func (r *ComputeRecorder) Gate(id nodeid.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gates[id] = make(chan struct{})
}

// Open releases computations of id blocked on its gate.
func (r *ComputeRecorder) Open(id nodeid.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gate, ok := r.gates[id]; ok {
		close(gate)
		delete(r.gates, id)
	}
}

// Started returns a channel receiving the id of every computation as it
// begins.
func (r *ComputeRecorder) Started() <-chan nodeid.ID {
	return r.started
}

// Fn is the compute function to hand to the executor.
func (r *ComputeRecorder) Fn(ctx context.Context, id nodeid.ID, input cty.Value, deps map[nodeid.ID]cty.Value) (cty.Value, error) {
	rec := ExecutionRecord{ID: id, Input: input, Deps: deps, Start: time.Now()}
	r.mu.Lock()
	gate := r.gates[id]
	r.mu.Unlock()

	select {
	case r.started <- id:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	out, err := r.next(ctx, id, input, deps)
	rec.End = time.Now()
	rec.Cancelled = ctx.Err() != nil

	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	return out, err
}

// Records returns every finished computation in completion order.
func (r *ComputeRecorder) Records() []ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ExecutionRecord(nil), r.records...)
}

// Order returns the ids of finished computations in completion order.
func (r *ComputeRecorder) Order() []nodeid.ID {
	var ids []nodeid.ID
	for _, rec := range r.Records() {
		ids = append(ids, rec.ID)
	}
	return ids
}

// Calls returns how many computations of id finished.
func (r *ComputeRecorder) Calls(id nodeid.ID) int {
	n := 0
	for _, rec := range r.Records() {
		if rec.ID == id {
			n++
		}
	}
	return n
}

// Reset forgets all records.
func (r *ComputeRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}
