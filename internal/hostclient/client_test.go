package hostclient

import (
	"context"
	"testing"
	"time"

	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/localsession"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/registry"
	"github.com/specialistvlad/liveresolver/internal/testutil"
	"github.com/specialistvlad/liveresolver/internal/transport/inproc"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type sumModule struct{}

func (sumModule) Register(h *handlers.Handlers) {
	h.RegisterHandler("sum", &handlers.RegisteredHandler{Fn: testutil.Sum})
}

type fixture struct {
	ctx    context.Context
	link   *inproc.Link
	client *Client
	seen   *testutil.EventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, _ := testutil.Context(t)
	ctx, cancel := context.WithCancel(ctx)

	link := inproc.New(ctx, func(ctx context.Context) *registry.Registry {
		return registry.New(ctx, handlers.New(sumModule{}), &localsession.SessionFactory{})
	})
	seen := testutil.NewEventLog()
	client := New(link, WithObserver(func(ev protocol.Event) { seen.Push(ev) }))

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	t.Cleanup(func() {
		_ = client.Close()
		require.NoError(t, <-done)
		cancel()
	})

	wctx, wcancel := context.WithTimeout(ctx, testutil.WaitTimeout)
	defer wcancel()
	_, err := client.WaitWorker(wctx)
	require.NoError(t, err)
	return &fixture{ctx: ctx, link: link, client: client, seen: seen}
}

func (f *fixture) waitReady(t *testing.T, resolverID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(f.ctx, testutil.WaitTimeout)
	defer cancel()
	require.NoError(t, f.client.WaitReady(ctx, resolverID))
}

func (f *fixture) output(t *testing.T, resolverID string, id nodeid.ID) string {
	t.Helper()
	out, ok := f.client.Output(resolverID, id)
	require.True(t, ok, "no output for %s/%s", resolverID, id)
	require.True(t, out.Resolved(), "node %s is %s", id, out.Status)
	return value.Format(out.Value)
}

func sumNodes() protocol.NodeInputs {
	return protocol.NodeInputs{
		{ID: "a", Input: cty.NumberIntVal(1)},
		{ID: "b", Input: value.Ref("a")},
	}
}

func TestClient_CreateAndUpdate(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.client.Create(f.ctx, "r1", "sum", sumNodes(), false))
	f.waitReady(t, "r1")
	assert.Equal(t, "1", f.output(t, "r1", "a"))
	assert.Equal(t, "1", f.output(t, "r1", "b"))

	require.NoError(t, f.client.Update(f.ctx, "r1", "a", cty.NumberIntVal(5)))
	f.waitReady(t, "r1")
	assert.Equal(t, "5", f.output(t, "r1", "a"))
	assert.Equal(t, "5", f.output(t, "r1", "b"))
	assert.Equal(t, []nodeid.ID{"a", "b"}, f.client.Nodes("r1"))
}

func TestClient_BurstOfUpdatesSettles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.Create(f.ctx, "r1", "sum", sumNodes(), false))
	for i := 2; i <= 20; i++ {
		require.NoError(t, f.client.Update(f.ctx, "r1", "a", cty.NumberIntVal(int64(i))))
	}
	f.waitReady(t, "r1")
	assert.Equal(t, "20", f.output(t, "r1", "a"))
	assert.Equal(t, "20", f.output(t, "r1", "b"))
}

func TestClient_DeleteDependency(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.Create(f.ctx, "r1", "sum", sumNodes(), false))
	f.waitReady(t, "r1")

	require.NoError(t, f.client.Delete(f.ctx, "r1", "a"))
	f.waitReady(t, "r1")
	_, ok := f.client.Output("r1", "a")
	assert.False(t, ok)
	assert.Equal(t, "0", f.output(t, "r1", "b"))
	assert.Equal(t, []nodeid.ID{"b"}, f.client.Nodes("r1"))
}

func TestClient_DependentSets(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.Create(f.ctx, "r1", "sum", sumNodes(), true))
	f.waitReady(t, "r1")

	dependents, ok := f.client.Dependents("r1", "a")
	require.True(t, ok)
	assert.Equal(t, []nodeid.ID{"b"}, dependents)
}

func TestClient_RejectionSurfacesInWaitReady(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.Create(f.ctx, "r1", "sum", sumNodes(), false))
	f.waitReady(t, "r1")

	require.NoError(t, f.client.Delete(f.ctx, "r1", "never-added"))
	ctx, cancel := context.WithTimeout(f.ctx, testutil.WaitTimeout)
	defer cancel()
	err := f.client.WaitReady(ctx, "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never-added")
	require.Len(t, f.client.Rejections(), 1)

	require.NoError(t, f.client.WaitReady(ctx, "r1"), "the rejection is reported once")
}

func TestClient_UnknownInstance(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.client.Update(f.ctx, "nope", "a", cty.True), ErrUnknownInstance)
	assert.ErrorIs(t, f.client.Delete(f.ctx, "nope", "a"), ErrUnknownInstance)
	assert.ErrorIs(t, f.client.Dispose(f.ctx, "nope"), ErrUnknownInstance)
	assert.ErrorIs(t, f.client.WaitReady(f.ctx, "nope"), ErrUnknownInstance)
	assert.Error(t, f.client.Create(f.ctx, "r1", "sum", nil, false))
	assert.Error(t, f.client.Create(f.ctx, "r1", "sum", nil, false), "second create of the same id")
}

func TestClient_Dispose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.Create(f.ctx, "r1", "sum", sumNodes(), false))
	f.waitReady(t, "r1")

	require.NoError(t, f.client.Dispose(f.ctx, "r1"))
	assert.Empty(t, f.client.Instances())
	assert.Eventually(t, func() bool {
		return len(f.link.Registry().ResolverIDs()) == 0
	}, testutil.WaitTimeout, 10*time.Millisecond)
}

func TestClient_RecreatesAfterRestart(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.Create(f.ctx, "r1", "sum", sumNodes(), false))
	require.NoError(t, f.client.Create(f.ctx, "r2", "sum", protocol.NodeInputs{{ID: "x", Input: cty.NumberIntVal(9)}}, false))
	f.waitReady(t, "r1")
	f.waitReady(t, "r2")
	require.NoError(t, f.client.Update(f.ctx, "r1", "a", cty.NumberIntVal(4)))
	f.waitReady(t, "r1")
	before := f.client.WorkerID()

	f.link.Restart()
	f.seen.WaitFor(t, func(ev protocol.Event) bool {
		return ev.Type == protocol.TypeReady && ev.WorkerID != before
	})
	f.waitReady(t, "r1")
	f.waitReady(t, "r2")

	assert.Equal(t, 1, f.client.Restarts())
	assert.NotEqual(t, before, f.client.WorkerID())
	assert.Equal(t, []string{"r1", "r2"}, f.link.Registry().ResolverIDs())
	assert.Equal(t, "4", f.output(t, "r1", "b"), "re-created from the retained inputs")
	assert.Equal(t, "9", f.output(t, "r2", "x"))

	require.NoError(t, f.client.Update(f.ctx, "r1", "a", cty.NumberIntVal(6)))
	f.waitReady(t, "r1")
	assert.Equal(t, "6", f.output(t, "r1", "b"))
}

func TestClient_StopsOnClose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.Create(f.ctx, "r1", "sum", sumNodes(), false))
	require.NoError(t, f.link.Close())

	ctx, cancel := context.WithTimeout(f.ctx, testutil.WaitTimeout)
	defer cancel()
	err := f.client.WaitReady(ctx, "r1")
	if err != nil {
		assert.ErrorIs(t, err, ErrStopped)
	}
}
