// Package sum provides the "sum" resolver type: the numeric sum of every
// number in a node's input once references are replaced by the outputs of
// the referenced nodes.
package sum

import (
	"context"
	"math/big"

	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Name is the resolver type registered by Module.
const Name = "sum"

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Compute adds up the numbers in input. Absent and null values, strings
// and booleans count as zero.
func Compute(ctx context.Context, id nodeid.ID, input cty.Value, deps map[nodeid.ID]cty.Value) (cty.Value, error) {
	resolved, err := value.Substitute(input, deps)
	if err != nil {
		return cty.NilVal, err
	}
	total := new(big.Float)
	err = cty.Walk(resolved, func(_ cty.Path, v cty.Value) (bool, error) {
		if v.IsNull() || !v.IsKnown() || v.Type() != cty.Number {
			return true, nil
		}
		total.Add(total, v.AsBigFloat())
		return true, nil
	})
	if err != nil {
		return cty.NilVal, err
	}
	ctxlog.FromContext(ctx).Debug("Sum computed.", "node_id", id, "total", total.String())
	return cty.NumberVal(total), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	h.RegisterHandler(Name, &handlers.RegisteredHandler{
		Description: "Sums every number in the input, references included.",
		Fn:          Compute,
	})
}
