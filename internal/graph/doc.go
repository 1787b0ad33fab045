// Package graph provides the unified interface for one resolver instance's
// node graph.
//
// # Why Graph Package Exists
//
// The Graph interface is a facade combining the Dependency Index
// (topologystore) and the Node Table (nodestore). Host edits (Set, Delete)
// touch both stores and must keep them in step: a node exists in the table
// exactly when it is registered in the index.
//
// # Responsibilities
//
//   - **Host edits:** Set and Delete apply input changes and invalidate the
//     transitive dependent closure of the edited node.
//   - **Dependency discovery:** RefreshDependencies re-derives a node's edges
//     from the references in its current input. The evaluator calls it at the
//     start of every run, so edges are never trusted beyond that point.
//   - **State transitions:** MarkComputing, MarkResolved, MarkFailed and
//     MarkPending are the evaluator's only way to change node state.
//   - **Dependent-set tracking:** every operation that changes some node's
//     dependent set records that node; TakeDependentChanges drains them for
//     dependent-set notifications.
//
// # Lifecycle
//
//  1. **Created** by the resolver instance with fresh stores
//  2. **Populated** from the create-resolver snapshot
//  3. **Edited** by commands and **updated** by the evaluator
//  4. **Discarded** on dispose
package graph
