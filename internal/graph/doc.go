// Package graph holds the descriptor-level data model shared by the operator
// factory and the fusion rewriter: operator descriptors and their attributes,
// the variable scope, and the operator schema table.
package graph
