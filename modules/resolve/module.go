// Package resolve provides the "resolve" resolver type. A node's output is
// its input with every reference replaced by the referenced node's output.
package resolve

import (
	"context"

	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Name is the resolver type registered by Module.
const Name = "resolve"

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Compute substitutes references in input.
func Compute(_ context.Context, _ nodeid.ID, input cty.Value, deps map[nodeid.ID]cty.Value) (cty.Value, error) {
	return value.Substitute(input, deps)
}

// Register registers the handler with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterHandler(Name, &handlers.RegisteredHandler{
		Description: "Returns the input with references replaced by their outputs.",
		Fn:          Compute,
	})
}
