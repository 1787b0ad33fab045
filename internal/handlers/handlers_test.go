package handlers

import (
	"context"
	"testing"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func identity(_ context.Context, _ nodeid.ID, input cty.Value, _ map[nodeid.ID]cty.Value) (cty.Value, error) {
	return input, nil
}

type testModule struct{ name string }

func (m testModule) Register(h *Handlers) {
	h.RegisterHandler(m.name, &RegisteredHandler{Fn: identity})
}

func TestNew_RegistersModules(t *testing.T) {
	h := New(testModule{"b"}, testModule{"a"})
	assert.Equal(t, []string{"a", "b"}, h.Names())

	reg, ok := h.Get("a")
	require.True(t, ok)
	out, err := reg.Fn(context.Background(), "n", cty.True, nil)
	require.NoError(t, err)
	assert.True(t, out.True())

	_, ok = h.Get("missing")
	assert.False(t, ok)
}

func TestRegisterHandler_PanicsOnDuplicate(t *testing.T) {
	h := New(testModule{"a"})
	assert.Panics(t, func() { testModule{"a"}.Register(h) })
}

func TestRegisterHandler_PanicsWithoutFn(t *testing.T) {
	h := New()
	assert.Panics(t, func() { h.RegisterHandler("x", &RegisteredHandler{}) })
}
