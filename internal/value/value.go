package value

import (
	"fmt"
	"reflect"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

type absentMarker struct{}

// RefType is the capsule type of node references.
var RefType = cty.CapsuleWithOps("reference", reflect.TypeOf(nodeid.ID("")), &cty.CapsuleOps{
	GoString: func(v interface{}) string {
		return fmt.Sprintf("value.Ref(%q)", string(*v.(*nodeid.ID)))
	},
	TypeGoString: func(reflect.Type) string {
		return "value.RefType"
	},
	RawEquals: func(a, b interface{}) bool {
		return *a.(*nodeid.ID) == *b.(*nodeid.ID)
	},
})

// AbsentType is the capsule type of Absent.
var AbsentType = cty.CapsuleWithOps("absent", reflect.TypeOf(absentMarker{}), &cty.CapsuleOps{
	GoString: func(interface{}) string {
		return "value.Absent"
	},
	TypeGoString: func(reflect.Type) string {
		return "value.AbsentType"
	},
	RawEquals: func(a, b interface{}) bool {
		return true
	},
})

// Absent stands in for the output of a dependency that does not exist.
var Absent = cty.CapsuleVal(AbsentType, &absentMarker{})

// Null is the value of an explicit JSON null.
var Null = cty.NullVal(cty.DynamicPseudoType)

// Ref returns a reference to the node with the given id.
func Ref(id nodeid.ID) cty.Value {
	return cty.CapsuleVal(RefType, &id)
}

// AsRef returns the referenced id if v is a known, non-null reference.
func AsRef(v cty.Value) (nodeid.ID, bool) {
	if !v.IsKnown() || v.IsNull() || !v.Type().Equals(RefType) {
		return "", false
	}
	return *v.EncapsulatedValue().(*nodeid.ID), true
}

// IsAbsent reports whether v is the Absent marker.
func IsAbsent(v cty.Value) bool {
	return v.IsKnown() && !v.IsNull() && v.Type().Equals(AbsentType)
}

// Equal reports whether a and b are structurally identical, including their
// types. Two references are equal when they name the same node.
func Equal(a, b cty.Value) bool {
	if a == cty.NilVal || b == cty.NilVal {
		return a == b
	}
	return a.RawEquals(b)
}
