package testutil

import (
	"context"
	"fmt"
	"math/big"

	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Resolve returns the input with every reference replaced by the referenced
// node's output.
func Resolve(_ context.Context, _ nodeid.ID, input cty.Value, deps map[nodeid.ID]cty.Value) (cty.Value, error) {
	return value.Substitute(input, deps)
}

// Sum adds up every number found in the input once references are replaced.
// Absent and null values count as zero.
func Sum(_ context.Context, _ nodeid.ID, input cty.Value, deps map[nodeid.ID]cty.Value) (cty.Value, error) {
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
	return cty.NumberVal(total), nil
}

// FailFor returns a compute function that fails for the given ids and
// delegates to next for the others.
func FailFor(next handlers.ComputeFunc, ids ...nodeid.ID) handlers.ComputeFunc {
	failing := nodeid.NewSet(ids...)
	return func(ctx context.Context, id nodeid.ID, input cty.Value, deps map[nodeid.ID]cty.Value) (cty.Value, error) {
		if failing.Has(id) {
			return cty.NilVal, fmt.Errorf("boom on %s", id)
		}
		return next(ctx, id, input, deps)
	}
}
