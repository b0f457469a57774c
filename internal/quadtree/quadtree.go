// Package quadtree decomposes a frame into flat-coloured rectangles.
//
// A region becomes a leaf when its variance is at or below the threshold,
// when either side is at or below the minimum size, or when it sits at the
// maximum depth. Otherwise it is split at w/2 and h/2 into up to four
// children, enumerated top-left, top-right, bottom-left, bottom-right. An axis
// whose half would fall below the minimum size is left whole, which yields a
// two-way split; if neither axis can be split the region is a leaf.
package quadtree

import (
	"github.com/Liamolucko/rectanglify/internal/integral"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

// Params control the split/stop rule.
type Params struct {
	Threshold float64
	MinSize   int
	MaxDepth  int
}

// Node is one region of the decomposition.
type Node struct {
	Region raster.Region
	Color  raster.Color
	Depth  int

	// first is the arena index of the first child; children are contiguous.
	first int32
	count int8
}

// Leaf reports whether the node has no children.
func (n Node) Leaf() bool { return n.count == 0 }

// NumChildren returns 0, 2 or 4.
func (n Node) NumChildren() int { return int(n.count) }

// Tree is a decomposition stored in a flat arena. The root is at index 0.
type Tree struct {
	nodes  []Node
	leaves int
	depth  int
}

// Root returns the index of the root node.
func (t *Tree) Root() int { return 0 }

// Len returns the total number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node at index i.
func (t *Tree) Node(i int) Node { return t.nodes[i] }

// Children returns the arena indices of the children of node i, in
// enumeration order.
func (t *Tree) Children(i int) []int {
	n := t.nodes[i]
	if n.count == 0 {
		return nil
	}
	out := make([]int, n.count)
	for k := range out {
		out[k] = int(n.first) + k
	}
	return out
}

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() int { return t.leaves }

// MaxDepth returns the depth of the deepest node.
func (t *Tree) MaxDepth() int { return t.depth }

// Walk visits nodes depth-first, children in enumeration order. Returning
// false from fn skips the subtree below that node.
func (t *Tree) Walk(fn func(i int, n Node) bool) {
	if len(t.nodes) == 0 {
		return
	}
	stack := []int{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes[i]
		if !fn(i, n) || n.count == 0 {
			continue
		}
		for k := int(n.count) - 1; k >= 0; k-- {
			stack = append(stack, int(n.first)+k)
		}
	}
}

// Leaves returns every leaf in depth-first enumeration order.
func (t *Tree) Leaves() []Node {
	out := make([]Node, 0, t.leaves)
	t.Walk(func(_ int, n Node) bool {
		if n.count == 0 {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Decompose builds the tree for root using the statistics in table.
//
// The traversal uses an explicit stack, so very deep configurations cannot
// exhaust the goroutine stack.
func Decompose(table *integral.Table, root raster.Region, p Params) *Tree {
	t := &Tree{}
	t.grow(table, root, 0, p)
	return t
}

// grow appends the subtree for region at the given depth and returns its
// arena index.
func (t *Tree) grow(table *integral.Table, region raster.Region, depth int, p Params) int {
	rootIdx := len(t.nodes)
	t.nodes = append(t.nodes, Node{Region: region, Depth: depth})

	stack := []int{rootIdx}
	var kids [4]raster.Region
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[i]
		stats := table.Query(n.Region)
		n.Color = stats.Mean()
		if n.Depth > t.depth {
			t.depth = n.Depth
		}

		k := split(n.Region, stats, n.Depth, p, &kids)
		if k == 0 {
			t.leaves++
			continue
		}

		d := n.Depth + 1
		first := len(t.nodes)
		n.first = int32(first)
		n.count = int8(k)
		// n is invalid after append.
		for j := 0; j < k; j++ {
			t.nodes = append(t.nodes, Node{Region: kids[j], Depth: d})
		}
		for j := k - 1; j >= 0; j-- {
			stack = append(stack, first+j)
		}
	}
	return rootIdx
}

// split applies the stop rule and, if the region must be divided, writes
// its children to kids and returns how many there are.
func split(r raster.Region, s integral.Stats, depth int, p Params, kids *[4]raster.Region) int {
	if depth >= p.MaxDepth || r.W <= p.MinSize || r.H <= p.MinSize {
		return 0
	}
	if s.Variance() <= p.Threshold {
		return 0
	}

	hw, hh := r.W/2, r.H/2
	splitX := hw >= p.MinSize
	splitY := hh >= p.MinSize

	switch {
	case splitX && splitY:
		kids[0] = raster.Region{X: r.X, Y: r.Y, W: hw, H: hh}
		kids[1] = raster.Region{X: r.X + hw, Y: r.Y, W: r.W - hw, H: hh}
		kids[2] = raster.Region{X: r.X, Y: r.Y + hh, W: hw, H: r.H - hh}
		kids[3] = raster.Region{X: r.X + hw, Y: r.Y + hh, W: r.W - hw, H: r.H - hh}
		return 4
	case splitX:
		kids[0] = raster.Region{X: r.X, Y: r.Y, W: hw, H: r.H}
		kids[1] = raster.Region{X: r.X + hw, Y: r.Y, W: r.W - hw, H: r.H}
		return 2
	case splitY:
		kids[0] = raster.Region{X: r.X, Y: r.Y, W: r.W, H: hh}
		kids[1] = raster.Region{X: r.X, Y: r.Y + hh, W: r.W, H: r.H - hh}
		return 2
	default:
		return 0
	}
}
