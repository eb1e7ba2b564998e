// Package fusion rewrites chains of operators into single fused operators.
//
// A Rule names an operator type pattern, the role renames applied when the
// chain's descriptors are merged, the fused operator type and preconditions
// on the matched nodes. A Fuser applies its rules in priority order over a
// Graph and rebuilds every fused operator through an operators.Registry, so
// fused operators are constructed exactly like loaded ones.
//
// A chain follows data edges: every node but the last writes one tensor that
// is read only by the next node, through a schema input role, and is not
// fetched. Passes repeat until one finds nothing to rewrite.
package fusion
