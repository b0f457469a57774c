package quadtree

import (
	"sync"

	"github.com/Liamolucko/rectanglify/internal/integral"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

// DecomposeParallel builds the same tree as Decompose, evaluating the
// subtrees below the root concurrently on at most workers goroutines.
//
// Each subtree is grown into its own arena and then grafted behind the root
// in enumeration order, so the result is identical node for node to the
// sequential traversal.
func DecomposeParallel(table *integral.Table, root raster.Region, p Params, workers int) *Tree {
	if workers <= 1 {
		return Decompose(table, root, p)
	}

	stats := table.Query(root)
	var kids [4]raster.Region
	k := split(root, stats, 0, p, &kids)
	if k == 0 {
		return Decompose(table, root, p)
	}

	subtrees := make([]*Tree, k)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			st := &Tree{}
			st.grow(table, kids[i], 1, p)
			subtrees[i] = st
		}(i)
	}
	wg.Wait()

	return graft(root, stats.Mean(), subtrees)
}

// graft assembles the root and its grown subtrees into one arena with the
// layout the sequential traversal produces: root, its children, then each
// child's descendants in turn.
func graft(root raster.Region, color raster.Color, subtrees []*Tree) *Tree {
	total := 1
	for _, st := range subtrees {
		total += st.Len()
	}

	t := &Tree{nodes: make([]Node, 1+len(subtrees), total)}
	t.nodes[0] = Node{
		Region: root,
		Color:  color,
		first:  1,
		count:  int8(len(subtrees)),
	}

	for i, st := range subtrees {
		base := len(t.nodes)
		remap := func(n Node) Node {
			if n.count > 0 {
				n.first = int32(base) + n.first - 1
			}
			return n
		}

		t.nodes[1+i] = remap(st.nodes[0])
		for _, n := range st.nodes[1:] {
			t.nodes = append(t.nodes, remap(n))
		}

		t.leaves += st.leaves
		if st.depth > t.depth {
			t.depth = st.depth
		}
	}
	return t
}
