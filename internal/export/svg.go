// Package export writes decompositions and painted frames to disk: SVG
// vector renderings, compressed leaf dumps, Graphviz memory maps and raster
// image sequences.
package export

import (
	"io"

	svg "github.com/ajstarks/svgo"

	"github.com/Liamolucko/rectanglify/internal/compose"
	"github.com/Liamolucko/rectanglify/internal/quadtree"
)

// WriteSVG renders the leaves of tree as an SVG document of the given size.
// Each leaf becomes one filled rect; borders become filled bands, matching
// the raster compositor pixel for pixel.
func WriteSVG(w io.Writer, tree *quadtree.Tree, width, height int, style compose.Style) {
	canvas := svg.New(w)
	canvas.Start(width, height, `shape-rendering="crispEdges"`)

	border := "fill:" + style.BorderColor.String()
	tree.Walk(func(_ int, n quadtree.Node) bool {
		if !n.Leaf() {
			return true
		}
		r := n.Region
		canvas.Rect(r.X, r.Y, r.W, r.H, "fill:"+n.Color.String())
		if style.DrawBorders {
			for _, b := range compose.Bands(r, style.BorderThickness) {
				canvas.Rect(b.X, b.Y, b.W, b.H, border)
			}
		}
		return true
	})

	canvas.End()
}
