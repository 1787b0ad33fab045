// Package scheduler provides the decision-making half of the evaluator: the
// workset of nodes awaiting computation, the readiness rule that decides
// which of them may run, and the analysis of a workset that can make no
// progress.
package scheduler
