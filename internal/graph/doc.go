// Package graph provides an acyclic depth-first traversal over an abstract
// node type. It produces a dependency-correct post-order: a node is emitted
// only after every node reachable through its children has been emitted.
//
// The traversal is deliberately iterative. Build graphs routinely reach
// depths that would overflow the call stack with a recursive walk, so the
// exploration state lives on an explicit frame stack whose depth is bounded
// only by available memory.
//
// Exactly one child is pushed per visit of a stack-top frame. This preserves
// declared child order and makes cycle reporting exact: when a child that is
// still in progress is encountered, the frame stack from that child upward is
// the cycle, and CycleError carries it verbatim.
package graph
