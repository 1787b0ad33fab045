// Package env_vars provides the "env" resolver type: a node's output is the
// value of the environment variable its input names.
//
// The input is either a string (the variable name) or an object
// {name, default}. An unset variable without a default resolves to null.
package env_vars

import (
	"context"
	"fmt"
	"os"

	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Name is the resolver type registered by Module.
const Name = "env"

// Module implements the handlers.Module interface for this package.
type Module struct {
	// Lookup replaces os.LookupEnv when set.
	Lookup func(string) (string, bool)
}

func (m *Module) compute(_ context.Context, _ nodeid.ID, input cty.Value, deps map[nodeid.ID]cty.Value) (cty.Value, error) {
	resolved, err := value.Substitute(input, deps)
	if err != nil {
		return cty.NilVal, err
	}

	name, fallback := resolved, value.Null
	if !resolved.IsNull() && resolved.Type().IsObjectType() {
		if !resolved.Type().HasAttribute("name") {
			return cty.NilVal, fmt.Errorf("input.name is required")
		}
		name = resolved.GetAttr("name")
		if resolved.Type().HasAttribute("default") {
			fallback = resolved.GetAttr("default")
		}
	}
	if name.IsNull() || name.Type() != cty.String || name.AsString() == "" {
		return cty.NilVal, fmt.Errorf("the variable name must be a non-empty string")
	}

	lookup := m.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(name.AsString()); ok {
		return cty.StringVal(v), nil
	}
	return fallback, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterHandler(Name, &handlers.RegisteredHandler{
		Description: "Reads an environment variable.",
		Fn:          m.compute,
	})
}
