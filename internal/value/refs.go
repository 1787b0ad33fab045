package value

import (
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// References returns the distinct node ids referenced anywhere inside v, in
// lexical order.
func References(v cty.Value) []nodeid.ID {
	if v == cty.NilVal {
		return nil
	}
	seen := make(map[nodeid.ID]struct{})
	_ = cty.Walk(v, func(_ cty.Path, cur cty.Value) (bool, error) {
		if id, ok := AsRef(cur); ok {
			seen[id] = struct{}{}
			return false, nil
		}
		return true, nil
	})
	if len(seen) == 0 {
		return nil
	}
	ids := make([]nodeid.ID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return nodeid.Sorted(ids)
}

// Substitute replaces every reference inside v with the matching entry of
// outputs. References missing from outputs become Absent.
//
// Values built by this package only contain tuples and objects, whose
// element types may change freely. Lists, maps and sets holding references
// must keep a single element type, so Substitute returns an error if the
// replacement would violate that.
func Substitute(v cty.Value, outputs map[nodeid.ID]cty.Value) (out cty.Value, err error) {
	if v == cty.NilVal {
		return Null, nil
	}
	defer func() {
		// cty panics when a rebuilt collection is not homogeneous.
		if r := recover(); r != nil {
			out = cty.NilVal
			err = &SubstituteError{Reason: r}
		}
	}()
	return cty.Transform(v, func(_ cty.Path, cur cty.Value) (cty.Value, error) {
		id, ok := AsRef(cur)
		if !ok {
			return cur, nil
		}
		if dep, ok := outputs[id]; ok && dep != cty.NilVal {
			return dep, nil
		}
		return Absent, nil
	})
}

// SubstituteError reports a reference that could not be replaced without
// breaking the element type of the enclosing collection.
type SubstituteError struct {
	Reason any
}

func (e *SubstituteError) Error() string {
	return "cannot substitute reference inside homogeneous collection"
}
