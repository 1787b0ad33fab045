// Package value defines the values flowing through a resolver instance.
//
// Node inputs and outputs are cty values. Two capsule types extend the cty
// type system for the resolver's needs:
//
//   - RefType marks a reference to another node of the same instance. It is
//     the only way an input expresses a dependency.
//   - AbsentType is what a computation observes in place of a dependency
//     that does not exist (never created, or deleted since).
//
// On the wire values are JSON. A reference is the single-key object
// {"$ref": "<node id>"}; every other JSON value maps onto the matching cty
// primitive, tuple or object.
package value
