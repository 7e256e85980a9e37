package graph

import (
	"fmt"
	"strings"
)

// nodeState tracks where a node is in the exploration lifecycle.
type nodeState uint8

const (
	// stateUnvisited is the zero value: the node has not been reached yet.
	stateUnvisited nodeState = iota
	// stateInProgress means the node is on the current exploration stack.
	// Reaching an in-progress node through a child edge is a cycle.
	stateInProgress
	// stateExplored means the node has been emitted to the output.
	stateExplored
)

// CycleError reports a dependency cycle found during traversal. Chain holds
// the offending nodes in edge order, starting and ending at the same node:
// Chain[0] -> Chain[1] -> ... -> Chain[len-1] == Chain[0].
type CycleError[N comparable] struct {
	Chain []N
}

// Error implements the error interface.
func (e *CycleError[N]) Error() string {
	parts := make([]string, len(e.Chain))
	for i, n := range e.Chain {
		parts[i] = fmt.Sprintf("%v", n)
	}
	return "dependency cycle detected: " + strings.Join(parts, " -> ")
}

// frame is one entry on the explicit exploration stack: a node paused
// mid-way through its child list.
type frame[N comparable] struct {
	node     N
	children []N
	next     int // index of the next child to consider
}

// Traverse walks every node reachable from roots and returns them in
// post-order: each node appears exactly once, after all of its children.
// Child-declaration order is preserved for tie-breaking, and the children
// function is consulted exactly once per node.
//
// A root that is also reachable from an earlier root is skipped rather than
// re-emitted. On a cycle, Traverse aborts with a *CycleError carrying the
// full chain; no partial order is returned because a partial order is not
// safe to schedule.
func Traverse[N comparable](roots []N, children func(N) []N) ([]N, error) {
	states := make(map[N]nodeState)
	var order []N
	var stack []frame[N]

	for _, root := range roots {
		if states[root] != stateUnvisited {
			continue
		}
		states[root] = stateInProgress
		stack = append(stack, frame[N]{node: root, children: children(root)})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]

			// Pull the next child that still needs exploring. Only one
			// child is pushed per visit so that the stack mirrors a single
			// root-to-leaf path, which is what makes the cycle chain exact.
			pushed := false
			for top.next < len(top.children) {
				child := top.children[top.next]
				top.next++
				switch states[child] {
				case stateExplored:
					continue
				case stateInProgress:
					return nil, &CycleError[N]{Chain: cycleChain(stack, child)}
				default:
					states[child] = stateInProgress
					stack = append(stack, frame[N]{node: child, children: children(child)})
					pushed = true
				}
				break
			}
			if pushed {
				continue
			}

			// Children exhausted: emit and pop.
			states[top.node] = stateExplored
			order = append(order, top.node)
			stack = stack[:len(stack)-1]
		}
	}
	return order, nil
}

// cycleChain reconstructs the cycle from the exploration stack. The stack
// holds the path from the root to the node whose child edge closed the
// cycle; the chain starts at the first occurrence of the colliding node.
func cycleChain[N comparable](stack []frame[N], collision N) []N {
	start := 0
	for i, f := range stack {
		if f.node == collision {
			start = i
			break
		}
	}
	chain := make([]N, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		chain = append(chain, f.node)
	}
	return append(chain, collision)
}
