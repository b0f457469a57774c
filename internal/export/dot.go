package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/bradleyjkemp/memviz"

	"github.com/Liamolucko/rectanglify/internal/quadtree"
)

// WriteDot writes a Graphviz graph of the leaf dump of tree. Intended for
// small frames; every leaf becomes a node.
func WriteDot(w io.Writer, tree *quadtree.Tree, width, height int) error {
	bw := bufio.NewWriter(w)
	memviz.Map(bw, NewDump(tree, width, height))
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("export: write dot: %w", err)
	}
	return nil
}
