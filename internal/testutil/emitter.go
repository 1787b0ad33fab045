package testutil

import (
	"context"
	"sync"

	"github.com/specialistvlad/liveresolver/internal/executor"
	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// Emitter records everything an executor emits.
type Emitter struct {
	mu         sync.Mutex
	batches    [][]executor.Result
	dependents map[nodeid.ID][]nodeid.ID
}

// NewEmitter creates an empty recording emitter.
func NewEmitter() *Emitter {
	return &Emitter{dependents: make(map[nodeid.ID][]nodeid.ID)}
}

// EmitOutputs implements executor.Emitter.
func (e *Emitter) EmitOutputs(_ context.Context, results []executor.Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, append([]executor.Result(nil), results...))
}

// EmitDependents implements executor.Emitter.
func (e *Emitter) EmitDependents(_ context.Context, id nodeid.ID, dependents []nodeid.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dependents[id] = append([]nodeid.ID(nil), dependents...)
}

// Batches returns every emitted batch in order.
func (e *Emitter) Batches() [][]executor.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]executor.Result(nil), e.batches...)
}

// Results returns every emitted result flattened in order.
func (e *Emitter) Results() []executor.Result {
	var all []executor.Result
	for _, b := range e.Batches() {
		all = append(all, b...)
	}
	return all
}

// Outputs returns the outputs emitted for id, oldest first.
func (e *Emitter) Outputs(id nodeid.ID) []cty.Value {
	var out []cty.Value
	for _, r := range e.Results() {
		if r.NodeID == id && r.State == node.Resolved {
			out = append(out, r.Output)
		}
	}
	return out
}

// Last returns the most recent result emitted for id.
func (e *Emitter) Last(id nodeid.ID) (executor.Result, bool) {
	results := e.Results()
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].NodeID == id {
			return results[i], true
		}
	}
	return executor.Result{}, false
}

// Dependents returns the last dependent set emitted for id.
func (e *Emitter) Dependents(id nodeid.ID) ([]nodeid.ID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.dependents[id]
	return d, ok
}

// Reset forgets everything recorded.
func (e *Emitter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = nil
	e.dependents = make(map[nodeid.ID][]nodeid.ID)
}
