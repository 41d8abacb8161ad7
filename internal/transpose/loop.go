package transpose

import "github.com/ChiZhang0907/riegeli/rerror"

// checkNoImplicitLoop walks every chain of implicit edges (Node whose
// Callback has the Implicit flag set follows Node.Next without the
// decoder consuming a transitions byte) and rejects the table if any
// chain cycles, since an implicit cycle would spin the decode loop
// forever (spec.md §4.4.7).
//
// Implemented as a two-coloring DFS rather than union-find: the implicit
// subgraph is a small, mostly-linear forest in practice, and a DFS is
// easier to reason about when guarding against pathologically deep
// chains (iterative, not recursive, so it can't itself blow the stack).
func checkNoImplicitLoop(nodes []Node) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]byte, len(nodes))
	for start := range nodes {
		if color[start] != white {
			continue
		}
		path := []int{}
		n := start
		for {
			if n < 0 || n >= len(nodes) {
				break
			}
			if !nodes[n].Callback.IsImplicit() {
				break
			}
			switch color[n] {
			case gray:
				return rerror.New(rerror.InvalidArgument, "nodes contain an implicit loop at node %d", n)
			case black:
				goto doneChain
			}
			color[n] = gray
			path = append(path, n)
			n = nodes[n].Next
		}
	doneChain:
		for _, p := range path {
			color[p] = black
		}
	}
	return nil
}
