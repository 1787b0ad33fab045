package value

import (
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// RefFunc is the cty function ref(id) that builds a reference from a string.
// It lets HCL documents reference nodes whose ids are not valid identifiers.
var RefFunc = function.New(&function.Spec{
	Description: "Returns a reference to the node with the given id.",
	Params: []function.Parameter{
		{Name: "id", Type: cty.String},
	},
	Type: function.StaticReturnType(RefType),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		id, err := nodeid.Parse(args[0].AsString())
		if err != nil {
			return cty.NilVal, function.NewArgError(0, err)
		}
		return Ref(id), nil
	},
})
