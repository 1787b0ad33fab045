// Package localexecutor provides a concrete, in-process implementation of the
// executor.Executor interface.
package localexecutor

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/liveresolver/internal/cancelscope"
	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/executor"
	"github.com/specialistvlad/liveresolver/internal/graph"
	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/metrics"
	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/scheduler"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// DefaultMaxConcurrency is the number of computations run at once unless
// configured otherwise.
const DefaultMaxConcurrency = 1

// Executor implements the executor.Executor interface for local execution.
// Apart from the compute functions it launches, it must be driven from a
// single goroutine.
type Executor struct {
	graph     graph.Graph
	scheduler scheduler.Scheduler
	compute   handlers.ComputeFunc
	scope     *cancelscope.Manager
	emitter   executor.Emitter
	workset   *scheduler.Workset

	maxConcurrency int
	metrics        *metrics.Recorder
	resolverType   string
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxConcurrency bounds the number of computations in flight. Values
// below one are ignored.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithMetrics reports computations to rec, labelled with resolverType.
func WithMetrics(rec *metrics.Recorder, resolverType string) Option {
	return func(e *Executor) {
		e.metrics = rec
		e.resolverType = resolverType
	}
}

// New creates a new local executor.
func New(
	sch scheduler.Scheduler,
	g graph.Graph,
	compute handlers.ComputeFunc,
	scope *cancelscope.Manager,
	emitter executor.Emitter,
	opts ...Option,
) executor.Executor {
	e := &Executor{
		graph:          g,
		scheduler:      sch,
		compute:        compute,
		scope:          scope,
		emitter:        emitter,
		workset:        scheduler.NewWorkset(),
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// outcome is what a compute goroutine reports back to the run loop.
type outcome struct {
	id       nodeid.ID
	output   cty.Value
	err      error
	duration time.Duration
}

// AddAllToWorkset queues every node of the graph.
func (e *Executor) AddAllToWorkset(ctx context.Context) {
	e.Invalidate(ctx, e.graph.IDs(ctx)...)
}

// Invalidate queues the given nodes and renews the cancellation scope.
// Unknown ids are ignored.
func (e *Executor) Invalidate(ctx context.Context, ids ...nodeid.ID) {
	logger := ctxlog.FromContext(ctx)
	added := 0
	for _, id := range ids {
		if !e.graph.Has(ctx, id) {
			continue
		}
		if err := e.graph.MarkPending(ctx, id); err != nil {
			logger.Error("Failed to mark node pending.", "node_id", id, "error", err)
			continue
		}
		added += e.workset.Add(id)
	}
	token := e.scope.Renew()
	logger.Debug("Workset invalidated.", "added", added, "queued", e.workset.Len(), "generation", token.Generation())
}

// Queued reports whether id awaits computation.
func (e *Executor) Queued(id nodeid.ID) bool {
	return e.workset.Has(id)
}

// Process runs the workset to a fixed point under token.
func (e *Executor) Process(ctx context.Context, token *cancelscope.Token) error {
	ctx = ctxlog.With(ctx, "generation", token.Generation())
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Processing workset.", "queued", e.workset.Len())

	e.refreshQueued(ctx)
	e.flushDependentChanges(ctx)

	outcomes := make(chan outcome, e.maxConcurrency)
	inFlight := 0
	for {
		if token.Live() && inFlight < e.maxConcurrency {
			for _, id := range e.scheduler.Ready(ctx, e.workset, e.maxConcurrency-inFlight) {
				if e.start(ctx, token, id, outcomes) {
					inFlight++
				}
			}
		}

		if inFlight == 0 {
			switch {
			case !token.Live():
				logger.Debug("Processing cancelled.", "queued", e.workset.Len())
				return executor.ErrCancelled
			case e.workset.Len() == 0:
				logger.Debug("Workset reached a fixed point.")
				return nil
			default:
				e.failStuck(ctx)
				continue
			}
		}

		out := <-outcomes
		inFlight--
		e.finish(ctx, token, out)
	}
}

// refreshQueued re-derives the edges of every queued node and drops ids that
// no longer exist.
func (e *Executor) refreshQueued(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for _, id := range e.workset.IDs() {
		if !e.graph.Has(ctx, id) {
			e.workset.Remove(id)
			continue
		}
		if _, err := e.graph.RefreshDependencies(ctx, id); err != nil {
			logger.Error("Failed to refresh dependencies.", "node_id", id, "error", err)
		}
	}
}

func (e *Executor) flushDependentChanges(ctx context.Context) {
	changed := e.graph.TakeDependentChanges(ctx)
	if e.emitter == nil {
		return
	}
	for _, id := range changed {
		dependents, err := e.graph.DependentsOf(ctx, id)
		if err != nil {
			continue
		}
		e.emitter.EmitDependents(ctx, id, dependents)
	}
}

// start launches the computation of id. It reports false when the node could
// not be started.
func (e *Executor) start(ctx context.Context, token *cancelscope.Token, id nodeid.ID, out chan<- outcome) bool {
	logger := ctxlog.FromContext(ctx)

	n, ok := e.graph.Node(ctx, id)
	if !ok {
		e.workset.Remove(id)
		return false
	}
	if err := e.graph.MarkComputing(ctx, id); err != nil {
		logger.Error("Failed to mark node computing.", "node_id", id, "error", err)
		e.workset.Remove(id)
		return false
	}
	e.workset.Remove(id)
	deps := e.dependencyOutputs(ctx, n.Input)
	logger.Debug("Computing node.", "node_id", id, "dependencies", len(deps))

	go func() {
		started := time.Now()
		output, err := e.safeCompute(token, id, n.Input, deps)
		out <- outcome{id: id, output: output, err: err, duration: time.Since(started)}
	}()
	return true
}

// dependencyOutputs maps every id referenced by input to the output its
// computation observes.
func (e *Executor) dependencyOutputs(ctx context.Context, input cty.Value) map[nodeid.ID]cty.Value {
	refs := value.References(input)
	deps := make(map[nodeid.ID]cty.Value, len(refs))
	for _, ref := range refs {
		dep, ok := e.graph.Node(ctx, ref)
		if !ok || !dep.HasOutput {
			deps[ref] = value.Absent
			continue
		}
		deps[ref] = dep.Output
	}
	return deps
}

func (e *Executor) safeCompute(ctx context.Context, id nodeid.ID, input cty.Value, deps map[nodeid.ID]cty.Value) (output cty.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = cty.NilVal
			err = fmt.Errorf("compute function panicked: %v", r)
		}
	}()
	return e.compute(ctx, id, input, deps)
}

// finish applies the outcome of one computation.
func (e *Executor) finish(ctx context.Context, token *cancelscope.Token, out outcome) {
	logger := ctxlog.FromContext(ctx)

	if !token.Live() {
		e.metrics.ObserveComputation(e.resolverType, metrics.OutcomeCancelled, out.duration)
		if err := e.graph.MarkPending(ctx, out.id); err != nil {
			logger.Error("Failed to requeue cancelled node.", "node_id", out.id, "error", err)
			return
		}
		e.workset.Add(out.id)
		logger.Debug("Computation superseded, node requeued.", "node_id", out.id)
		return
	}

	if out.err != nil {
		e.metrics.ObserveComputation(e.resolverType, metrics.OutcomeFailed, out.duration)
		e.fail(ctx, out.id, out.err)
		return
	}

	e.metrics.ObserveComputation(e.resolverType, metrics.OutcomeResolved, out.duration)
	output := out.output
	if output == cty.NilVal {
		output = value.Null
	}
	if err := e.graph.MarkResolved(ctx, out.id, output); err != nil {
		logger.Error("Failed to record output.", "node_id", out.id, "error", err)
		return
	}
	logger.Debug("Node resolved.", "node_id", out.id)
	e.emit(ctx, []executor.Result{{NodeID: out.id, State: node.Resolved, Output: output}})

	dependents, _ := e.graph.DependentsOf(ctx, out.id)
	for _, d := range dependents {
		if dn, ok := e.graph.Node(ctx, d); ok && dn.State == node.Pending && !e.workset.Has(d) {
			e.workset.Add(d)
		}
	}
}

// fail marks id failed and every transitive dependent failed with an
// upstream error, emitting all of them in one batch.
func (e *Executor) fail(ctx context.Context, id nodeid.ID, cause error) {
	logger := ctxlog.FromContext(ctx)

	computeErr := &executor.ComputeError{NodeID: id, Err: cause}
	results := []executor.Result{{NodeID: id, State: node.Failed, Err: computeErr}}
	if err := e.graph.MarkFailed(ctx, id, computeErr); err != nil {
		logger.Error("Failed to record node error.", "node_id", id, "error", err)
	}

	for _, d := range e.graph.TransitiveDependents(ctx, id) {
		dn, ok := e.graph.Node(ctx, d)
		if !ok || dn.State == node.Computing {
			continue
		}
		upstreamErr := &executor.UpstreamError{NodeID: d, Upstream: id}
		if err := e.graph.MarkFailed(ctx, d, upstreamErr); err != nil {
			continue
		}
		e.workset.Remove(d)
		results = append(results, executor.Result{NodeID: d, State: node.Failed, Err: upstreamErr})
	}
	logger.Debug("Node failed.", "node_id", id, "error", cause, "dependents_failed", len(results)-1)
	e.emit(ctx, results)
}

// failStuck fails every queued node. It is only called when nothing is ready
// and nothing is in flight.
func (e *Executor) failStuck(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	verdicts := e.scheduler.Stuck(ctx, e.workset)
	results := make([]executor.Result, 0, len(verdicts))
	cycles := 0
	for _, v := range verdicts {
		var nodeErr error
		if v.Cycle != nil {
			nodeErr = &executor.CycleError{NodeID: v.NodeID, Cycle: v.Cycle}
			cycles++
		} else {
			nodeErr = &executor.UpstreamError{NodeID: v.NodeID, Upstream: v.Upstream}
		}
		e.workset.Remove(v.NodeID)
		if err := e.graph.MarkFailed(ctx, v.NodeID, nodeErr); err != nil {
			logger.Error("Failed to record node error.", "node_id", v.NodeID, "error", err)
			continue
		}
		results = append(results, executor.Result{NodeID: v.NodeID, State: node.Failed, Err: nodeErr})
	}
	// Anything Stuck did not classify must still leave the workset.
	for _, id := range e.workset.IDs() {
		e.workset.Remove(id)
	}
	e.metrics.CycleFailures(e.resolverType, cycles)
	logger.Warn("Workset stuck, failing remaining nodes.", "failed", len(results), "in_cycle", cycles)
	e.emit(ctx, results)
}

func (e *Executor) emit(ctx context.Context, results []executor.Result) {
	if e.emitter == nil || len(results) == 0 {
		return
	}
	e.emitter.EmitOutputs(ctx, results)
}
