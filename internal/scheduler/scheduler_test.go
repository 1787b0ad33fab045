package scheduler

import (
	"context"
	"testing"

	"github.com/specialistvlad/liveresolver/internal/graph"
	"github.com/specialistvlad/liveresolver/internal/inmemorystore"
	"github.com/specialistvlad/liveresolver/internal/inmemorytopology"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// build creates a graph from id/input pairs, derives every node's edges and
// queues all nodes.
func build(t *testing.T, inputs ...any) (graph.Graph, *Workset) {
	t.Helper()
	ctx := context.Background()
	g := graph.New(inmemorytopology.New(), inmemorystore.New())
	ws := NewWorkset()
	for i := 0; i < len(inputs); i += 2 {
		id := nodeid.ID(inputs[i].(string))
		_, err := g.Set(ctx, id, inputs[i+1].(cty.Value))
		require.NoError(t, err)
		ws.Add(id)
	}
	for _, id := range ws.IDs() {
		_, err := g.RefreshDependencies(ctx, id)
		require.NoError(t, err)
	}
	return g, ws
}

func TestWorkset(t *testing.T) {
	ws := NewWorkset()
	assert.Equal(t, 2, ws.Add("b", "a"))
	assert.Equal(t, 0, ws.Add("b"))
	assert.Equal(t, []nodeid.ID{"b", "a"}, ws.IDs())
	assert.True(t, ws.Has("a"))

	assert.True(t, ws.Remove("b"))
	assert.False(t, ws.Remove("b"))
	assert.Equal(t, 1, ws.Len())

	ws.Add("b")
	assert.Equal(t, []nodeid.ID{"a", "b"}, ws.IDs())
}

func TestReady(t *testing.T) {
	ctx := context.Background()

	t.Run("dependencies queued", func(t *testing.T) {
		g, ws := build(t,
			"a", cty.NumberIntVal(1),
			"b", value.Ref("a"),
			"c", cty.NumberIntVal(3),
		)
		s := New(g)
		assert.Equal(t, []nodeid.ID{"a", "c"}, s.Ready(ctx, ws, 10))
		assert.Equal(t, []nodeid.ID{"a"}, s.Ready(ctx, ws, 1))
	})

	t.Run("resolved dependency", func(t *testing.T) {
		g, ws := build(t,
			"a", cty.NumberIntVal(1),
			"b", value.Ref("a"),
		)
		require.NoError(t, g.MarkResolved(ctx, "a", cty.NumberIntVal(1)))
		ws.Remove("a")
		assert.Equal(t, []nodeid.ID{"b"}, New(g).Ready(ctx, ws, 10))
	})

	t.Run("failed dependency blocks", func(t *testing.T) {
		g, ws := build(t,
			"a", cty.NumberIntVal(1),
			"b", value.Ref("a"),
		)
		require.NoError(t, g.MarkFailed(ctx, "a", assert.AnError))
		ws.Remove("a")
		assert.Empty(t, New(g).Ready(ctx, ws, 10))
	})

	t.Run("absent dependency is satisfied", func(t *testing.T) {
		g, ws := build(t, "b", value.Ref("ghost"))
		assert.Equal(t, []nodeid.ID{"b"}, New(g).Ready(ctx, ws, 10))
	})

	t.Run("computing node is not ready", func(t *testing.T) {
		g, ws := build(t, "a", cty.NumberIntVal(1))
		require.NoError(t, g.MarkComputing(ctx, "a"))
		assert.Empty(t, New(g).Ready(ctx, ws, 10))
	})
}

func TestStuck_Cycle(t *testing.T) {
	ctx := context.Background()
	g, ws := build(t,
		"a", value.Ref("b"),
		"b", value.Ref("a"),
		"c", value.Ref("a"),
	)
	s := New(g)
	require.Empty(t, s.Ready(ctx, ws, 10))

	verdicts := s.Stuck(ctx, ws)
	require.Len(t, verdicts, 3)

	assert.Equal(t, Verdict{NodeID: "a", Cycle: []nodeid.ID{"a", "b", "a"}}, verdicts[0])
	assert.Equal(t, Verdict{NodeID: "b", Cycle: []nodeid.ID{"b", "a", "b"}}, verdicts[1])
	assert.Equal(t, Verdict{NodeID: "c", Upstream: "a"}, verdicts[2])
}

func TestStuck_SelfReference(t *testing.T) {
	ctx := context.Background()
	g, ws := build(t, "a", value.Ref("a"))

	verdicts := New(g).Stuck(ctx, ws)
	require.Len(t, verdicts, 1)
	assert.Equal(t, []nodeid.ID{"a", "a"}, verdicts[0].Cycle)
}

func TestStuck_LongCycle(t *testing.T) {
	ctx := context.Background()
	g, ws := build(t,
		"a", value.Ref("b"),
		"b", value.Ref("c"),
		"c", value.Ref("a"),
	)

	verdicts := New(g).Stuck(ctx, ws)
	require.Len(t, verdicts, 3)
	assert.Equal(t, []nodeid.ID{"a", "b", "c", "a"}, verdicts[0].Cycle)
	assert.Equal(t, []nodeid.ID{"c", "a", "b", "c"}, verdicts[2].Cycle)
}

func TestStuck_FailedUpstream(t *testing.T) {
	ctx := context.Background()
	g, ws := build(t,
		"a", cty.NumberIntVal(1),
		"b", value.Ref("a"),
	)
	require.NoError(t, g.MarkFailed(ctx, "a", assert.AnError))
	ws.Remove("a")

	verdicts := New(g).Stuck(ctx, ws)
	assert.Equal(t, []Verdict{{NodeID: "b", Upstream: "a"}}, verdicts)
}

func TestStronglyConnected(t *testing.T) {
	edges := map[nodeid.ID][]nodeid.ID{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": {"a"},
	}
	comp := stronglyConnected([]nodeid.ID{"a", "b", "c", "d"}, edges)
	assert.Equal(t, []nodeid.ID{"a", "b", "c"}, comp["b"])
	assert.Equal(t, []nodeid.ID{"d"}, comp["d"])
}
