package localexecutor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/liveresolver/internal/cancelscope"
	"github.com/specialistvlad/liveresolver/internal/executor"
	"github.com/specialistvlad/liveresolver/internal/graph"
	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/inmemorystore"
	"github.com/specialistvlad/liveresolver/internal/inmemorytopology"
	"github.com/specialistvlad/liveresolver/internal/metrics"
	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/scheduler"
	"github.com/specialistvlad/liveresolver/internal/testutil"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type fixture struct {
	ctx   context.Context
	graph graph.Graph
	scope *cancelscope.Manager
	emit  *testutil.Emitter
	rec   *testutil.ComputeRecorder
	exec  executor.Executor
}

func newFixture(t *testing.T, compute handlers.ComputeFunc, opts ...Option) *fixture {
	t.Helper()
	ctx, _ := testutil.Context(t)
	g := graph.New(inmemorytopology.New(), inmemorystore.New())
	scope := cancelscope.New(ctx)
	t.Cleanup(scope.Close)
	em := testutil.NewEmitter()
	rec := testutil.NewComputeRecorder(compute)
	return &fixture{
		ctx:   ctx,
		graph: g,
		scope: scope,
		emit:  em,
		rec:   rec,
		exec:  New(scheduler.New(g), g, rec.Fn, scope, em, opts...),
	}
}

func (f *fixture) set(t *testing.T, id nodeid.ID, input cty.Value) {
	t.Helper()
	affected, err := f.graph.Set(f.ctx, id, input)
	require.NoError(t, err)
	f.exec.Invalidate(f.ctx, affected...)
}

func (f *fixture) delete(t *testing.T, id nodeid.ID) {
	t.Helper()
	affected, err := f.graph.Delete(f.ctx, id)
	require.NoError(t, err)
	f.exec.Invalidate(f.ctx, affected...)
}

func (f *fixture) process(t *testing.T) {
	t.Helper()
	require.NoError(t, f.exec.Process(f.ctx, f.scope.Current()))
	require.NoError(t, f.graph.Consistent(f.ctx))
}

func (f *fixture) node(t *testing.T, id nodeid.ID) node.Node {
	t.Helper()
	n, ok := f.graph.Node(f.ctx, id)
	require.True(t, ok, "node %q should exist", id)
	return n
}

func (f *fixture) reset() {
	f.rec.Reset()
	f.emit.Reset()
}

func num(t *testing.T, v cty.Value) int64 {
	t.Helper()
	require.Equal(t, cty.Number, v.Type(), "expected a number, got %#v", v)
	i, _ := v.AsBigFloat().Int64()
	return i
}

func nums(t *testing.T, vs []cty.Value) []int64 {
	t.Helper()
	out := make([]int64, 0, len(vs))
	for _, v := range vs {
		out = append(out, num(t, v))
	}
	return out
}

// diamond builds a=1, b=ref(a), c=ref(a), d=[ref(b), ref(c)], e=10.
func diamond(t *testing.T, f *fixture) {
	t.Helper()
	f.set(t, "a", cty.NumberIntVal(1))
	f.set(t, "b", value.Ref("a"))
	f.set(t, "c", value.Ref("a"))
	f.set(t, "d", cty.TupleVal([]cty.Value{value.Ref("b"), value.Ref("c")}))
	f.set(t, "e", cty.NumberIntVal(10))
	f.process(t)
}

func TestProcess_AcyclicFixedPoint(t *testing.T) {
	f := newFixture(t, testutil.Sum)
	diamond(t, f)

	for id, want := range map[nodeid.ID]int64{"a": 1, "b": 1, "c": 1, "d": 2, "e": 10} {
		n := f.node(t, id)
		assert.Equal(t, node.Resolved, n.State, "node %s", id)
		assert.Equal(t, want, num(t, n.Output), "node %s", id)
	}

	// No stale reads: every computation saw resolved dependency outputs.
	for _, rec := range f.rec.Records() {
		for dep, out := range rec.Deps {
			assert.Equal(t, num(t, f.node(t, dep).Output), num(t, out), "%s read %s", rec.ID, dep)
		}
	}
	assert.False(t, f.exec.Queued("a"))
}

func TestProcess_LeafInvalidation(t *testing.T) {
	f := newFixture(t, testutil.Sum)
	diamond(t, f)
	f.reset()

	f.set(t, "d", cty.NumberIntVal(7))
	f.process(t)

	assert.Equal(t, []nodeid.ID{"d"}, f.rec.Order())
	assert.Equal(t, []int64{7}, nums(t, f.emit.Outputs("d")))
}

func TestProcess_RecomputesDependentClosure(t *testing.T) {
	f := newFixture(t, testutil.Sum)
	diamond(t, f)
	f.reset()

	f.set(t, "a", cty.NumberIntVal(5))
	f.process(t)

	assert.ElementsMatch(t, []nodeid.ID{"a", "b", "c", "d"}, f.rec.Order())
	assert.Equal(t, nodeid.ID("a"), f.rec.Order()[0])
	assert.Equal(t, nodeid.ID("d"), f.rec.Order()[3])
	assert.Zero(t, f.rec.Calls("e"))
	assert.Equal(t, int64(10), num(t, f.node(t, "d").Output))
}

func TestProcess_SumScenario(t *testing.T) {
	f := newFixture(t, testutil.Sum)
	f.set(t, "a", cty.NumberIntVal(1))
	f.set(t, "b", value.Ref("a"))
	f.process(t)

	assert.Equal(t, []int64{1}, nums(t, f.emit.Outputs("a")))
	assert.Equal(t, []int64{1}, nums(t, f.emit.Outputs("b")))
	f.reset()

	f.set(t, "a", cty.NumberIntVal(5))
	f.process(t)

	results := f.emit.Results()
	require.Len(t, results, 2)
	assert.Equal(t, nodeid.ID("a"), results[0].NodeID)
	assert.Equal(t, int64(5), num(t, results[0].Output))
	assert.Equal(t, nodeid.ID("b"), results[1].NodeID)
	assert.Equal(t, int64(5), num(t, results[1].Output))
}

func TestProcess_DeleteDependency(t *testing.T) {
	f := newFixture(t, testutil.Sum)
	f.set(t, "a", cty.NumberIntVal(3))
	f.set(t, "b", cty.TupleVal([]cty.Value{value.Ref("a"), cty.NumberIntVal(1)}))
	f.process(t)
	require.Equal(t, int64(4), num(t, f.node(t, "b").Output))
	f.reset()

	f.delete(t, "a")
	f.process(t)

	records := f.rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, nodeid.ID("b"), records[0].ID)
	assert.True(t, value.IsAbsent(records[0].Deps["a"]))
	assert.Equal(t, int64(1), num(t, f.node(t, "b").Output))

	missing, err := f.graph.MissingOf(f.ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []nodeid.ID{"a"}, missing)
}

func TestProcess_AbsentReferenceCreatedLater(t *testing.T) {
	f := newFixture(t, testutil.Sum)
	f.set(t, "b", value.Ref("x"))
	f.process(t)
	require.Equal(t, int64(0), num(t, f.node(t, "b").Output))
	f.reset()

	f.set(t, "x", cty.NumberIntVal(3))
	f.process(t)

	assert.Equal(t, []nodeid.ID{"x", "b"}, f.rec.Order())
	assert.Equal(t, int64(3), num(t, f.node(t, "b").Output))
	dependents, ok := f.emit.Dependents("x")
	require.True(t, ok)
	assert.Equal(t, []nodeid.ID{"b"}, dependents)
}

func TestProcess_Cycle(t *testing.T) {
	f := newFixture(t, testutil.Sum)
	f.set(t, "a", value.Ref("b"))
	f.set(t, "b", value.Ref("a"))
	f.set(t, "c", value.Ref("a"))
	f.set(t, "d", cty.NumberIntVal(1))

	done := make(chan error, 1)
	go func() { done <- f.exec.Process(f.ctx, f.scope.Current()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not terminate on a cycle")
	}

	for _, id := range []nodeid.ID{"a", "b"} {
		n := f.node(t, id)
		assert.Equal(t, node.Failed, n.State)
		var cycleErr *executor.CycleError
		require.True(t, errors.As(n.Err, &cycleErr), "node %s: %v", id, n.Err)
		assert.Len(t, cycleErr.Cycle, 3)
	}
	var upstreamErr *executor.UpstreamError
	require.True(t, errors.As(f.node(t, "c").Err, &upstreamErr))
	assert.Equal(t, nodeid.ID("a"), upstreamErr.Upstream)

	assert.Equal(t, node.Resolved, f.node(t, "d").State)
	assert.Equal(t, []nodeid.ID{"d"}, f.rec.Order())
	assert.False(t, f.exec.Queued("a"))

	// Breaking the cycle recovers every node.
	f.set(t, "b", cty.NumberIntVal(2))
	f.process(t)
	assert.Equal(t, int64(2), num(t, f.node(t, "a").Output))
	assert.Equal(t, int64(2), num(t, f.node(t, "c").Output))
}

func TestProcess_ComputeErrorFailsDependents(t *testing.T) {
	f := newFixture(t, testutil.FailFor(testutil.Sum, "a"))
	f.set(t, "a", cty.NumberIntVal(1))
	f.set(t, "b", value.Ref("a"))
	f.set(t, "c", value.Ref("b"))
	f.set(t, "z", cty.NumberIntVal(9))
	f.process(t)

	var computeErr *executor.ComputeError
	require.True(t, errors.As(f.node(t, "a").Err, &computeErr))
	assert.EqualError(t, computeErr.Err, "boom on a")

	for _, id := range []nodeid.ID{"b", "c"} {
		assert.Equal(t, node.Failed, f.node(t, id).State)
		assert.Equal(t, executor.KindUpstream, executor.Kind(f.node(t, id).Err))
		assert.Zero(t, f.rec.Calls(id))
	}
	assert.Equal(t, node.Resolved, f.node(t, "z").State)

	var failedBatch []executor.Result
	for _, b := range f.emit.Batches() {
		if b[0].NodeID == "a" {
			failedBatch = b
		}
	}
	require.Len(t, failedBatch, 3, "failures are emitted in one batch")
}

func TestProcess_PanicBecomesComputeError(t *testing.T) {
	f := newFixture(t, func(context.Context, nodeid.ID, cty.Value, map[nodeid.ID]cty.Value) (cty.Value, error) {
		panic("kaboom")
	})
	f.set(t, "a", cty.NumberIntVal(1))
	f.process(t)

	n := f.node(t, "a")
	assert.Equal(t, node.Failed, n.State)
	assert.Equal(t, executor.KindCompute, executor.Kind(n.Err))
	assert.Contains(t, n.Err.Error(), "kaboom")
}

func TestProcess_NilOutputIsNull(t *testing.T) {
	f := newFixture(t, func(context.Context, nodeid.ID, cty.Value, map[nodeid.ID]cty.Value) (cty.Value, error) {
		return cty.NilVal, nil
	})
	f.set(t, "a", cty.NumberIntVal(1))
	f.process(t)

	n := f.node(t, "a")
	assert.Equal(t, node.Resolved, n.State)
	assert.True(t, n.Output.IsNull())
}

func TestProcess_IdenticalUpdatesConverge(t *testing.T) {
	f := newFixture(t, testutil.Sum)
	f.set(t, "a", cty.NumberIntVal(1))
	f.set(t, "b", value.Ref("a"))
	f.process(t)
	f.reset()

	for i := 0; i < 3; i++ {
		f.set(t, "a", cty.NumberIntVal(4))
		f.process(t)
	}
	assert.Equal(t, []int64{4, 4, 4}, nums(t, f.emit.Outputs("b")))
	assert.Equal(t, int64(4), num(t, f.node(t, "b").Output))
}

func TestProcess_Cancellation(t *testing.T) {
	f := newFixture(t, testutil.Sum)
	f.set(t, "a", cty.NumberIntVal(1))
	f.set(t, "b", value.Ref("a"))
	f.rec.Gate("a")

	done := make(chan error, 1)
	go func() { done <- f.exec.Process(f.ctx, f.scope.Current()) }()

	select {
	case id := <-f.rec.Started():
		require.Equal(t, nodeid.ID("a"), id)
	case <-time.After(5 * time.Second):
		t.Fatal("computation of a never started")
	}
	f.scope.Cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, executor.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not return after cancellation")
	}

	assert.Empty(t, f.emit.Results(), "superseded computations emit nothing")
	assert.Equal(t, node.Pending, f.node(t, "a").State)
	assert.True(t, f.exec.Queued("a"))
	assert.True(t, f.exec.Queued("b"))

	f.rec.Open("a")
	f.set(t, "a", cty.NumberIntVal(2))
	f.process(t)
	assert.Equal(t, []int64{2}, nums(t, f.emit.Outputs("a")))
	assert.Equal(t, []int64{2}, nums(t, f.emit.Outputs("b")))
}

func TestProcess_MaxConcurrency(t *testing.T) {
	f := newFixture(t, testutil.Sum, WithMaxConcurrency(2))
	for _, id := range []nodeid.ID{"a", "b", "c"} {
		f.rec.Gate(id)
		f.set(t, id, cty.NumberIntVal(1))
	}

	done := make(chan error, 1)
	go func() { done <- f.exec.Process(f.ctx, f.scope.Current()) }()

	started := map[nodeid.ID]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-f.rec.Started():
			started[id] = true
		case <-time.After(5 * time.Second):
			t.Fatal("expected two computations to start")
		}
	}
	select {
	case id := <-f.rec.Started():
		t.Fatalf("computation of %s started above the concurrency limit", id)
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, started["a"] && started["b"])

	for _, id := range []nodeid.ID{"a", "b", "c"} {
		f.rec.Open(id)
	}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not finish")
	}
	assert.Equal(t, node.Resolved, f.node(t, "c").State)
}

func TestProcess_RecordsMetrics(t *testing.T) {
	rec := metrics.New()
	f := newFixture(t, testutil.Sum, WithMetrics(rec, "sum"))
	f.set(t, "a", value.Ref("a"))
	f.set(t, "b", cty.NumberIntVal(1))
	f.process(t)

	families, err := rec.Gatherer().Gather()
	require.NoError(t, err)
	found := map[string]bool{}
	for _, fam := range families {
		found[fam.GetName()] = true
	}
	assert.True(t, found["liveresolver_computations_total"])
	assert.True(t, found["liveresolver_cycle_failures_total"])
}
