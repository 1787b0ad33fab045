package inproc

import (
	"context"
	"io"
	"testing"

	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/localsession"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/registry"
	"github.com/specialistvlad/liveresolver/internal/testutil"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type sumModule struct{}

func (sumModule) Register(h *handlers.Handlers) {
	h.RegisterHandler("sum", &handlers.RegisteredHandler{Fn: testutil.Sum})
}

func newLink(t *testing.T) (context.Context, *Link) {
	t.Helper()
	ctx, _ := testutil.Context(t)
	l := New(ctx, func(ctx context.Context) *registry.Registry {
		return registry.New(ctx, handlers.New(sumModule{}), &localsession.SessionFactory{})
	})
	t.Cleanup(func() { _ = l.Close() })
	return ctx, l
}

func until(t *testing.T, ctx context.Context, l *Link, typ string) []protocol.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, testutil.WaitTimeout)
	defer cancel()
	var got []protocol.Event
	for {
		ev, err := l.Next(ctx)
		require.NoError(t, err, "events so far: %+v", got)
		got = append(got, ev)
		if ev.Type == typ {
			return got
		}
	}
}

func TestLink_RoundTrip(t *testing.T) {
	ctx, l := newLink(t)
	ready := until(t, ctx, l, protocol.TypeReady)
	require.Len(t, ready, 1)

	require.NoError(t, l.Send(ctx, protocol.CreateResolver("r1", "sum", protocol.NodeInputs{
		{ID: "a", Input: cty.NumberIntVal(2)},
		{ID: "b", Input: value.Ref("a")},
	}, false)))

	var got []string
	for _, ev := range until(t, ctx, l, protocol.TypeResolverReady) {
		for _, item := range ev.Items {
			got = append(got, item.NodeID+"="+value.Format(item.Output.Value))
		}
	}
	assert.Equal(t, []string{"a=2", "b=2"}, got)
}

func TestLink_Restart(t *testing.T) {
	ctx, l := newLink(t)
	first := until(t, ctx, l, protocol.TypeReady)[0].WorkerID

	require.NoError(t, l.Send(ctx, protocol.CreateResolver("r1", "sum", protocol.NodeInputs{
		{ID: "a", Input: cty.NumberIntVal(1)},
	}, false)))
	until(t, ctx, l, protocol.TypeResolverReady)
	old := l.Registry()
	require.Equal(t, []string{"r1"}, old.ResolverIDs())

	l.Restart()
	assert.Empty(t, old.ResolverIDs(), "restart loses every instance")

	second := until(t, ctx, l, protocol.TypeReady)
	assert.NotEqual(t, first, second[len(second)-1].WorkerID)
	assert.Empty(t, l.Registry().ResolverIDs())

	require.NoError(t, l.Send(ctx, protocol.UpdateInput("r1", "a", cty.NumberIntVal(3))))
	rejected := until(t, ctx, l, protocol.TypeRejected)
	assert.Contains(t, rejected[len(rejected)-1].Reason, "r1")
}

func TestLink_Close(t *testing.T) {
	ctx, l := newLink(t)
	until(t, ctx, l, protocol.TypeReady)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, err := l.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, l.Send(ctx, protocol.DisposeResolver("r1")), ErrClosed)
}
