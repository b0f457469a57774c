// Package compose rasterizes a decomposition tree into a frame.
package compose

import (
	"fmt"

	"github.com/Liamolucko/rectanglify/internal/quadtree"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

// Style controls how leaves are painted.
type Style struct {
	DrawBorders     bool
	BorderColor     raster.Color
	BorderThickness int
}

// Render paints every leaf of tree into dst. Leaves are visited in
// enumeration order; they are disjoint, so the order only affects locality.
func Render(tree *quadtree.Tree, dst *raster.Frame, style Style) {
	tree.Walk(func(_ int, n quadtree.Node) bool {
		if n.Leaf() {
			FillRegion(dst, n.Region, n.Color)
			if style.DrawBorders && style.BorderThickness > 0 {
				StrokeRegion(dst, n.Region, style.BorderColor, style.BorderThickness)
			}
		}
		return true
	})
}

// FillRegion sets every pixel of r to c. It panics if r is not inside dst.
func FillRegion(dst *raster.Frame, r raster.Region, c raster.Color) {
	mustContain(dst, r)

	// Paint the first row, then copy it down.
	stride := dst.Stride()
	start := dst.Offset(r.X, r.Y)
	row := dst.Pix[start : start+r.W*raster.Channels]
	for i := 0; i < len(row); i += raster.Channels {
		row[i] = c.R
		row[i+1] = c.G
		row[i+2] = c.B
	}
	for y := 1; y < r.H; y++ {
		off := start + y*stride
		copy(dst.Pix[off:off+len(row)], row)
	}
}

// StrokeRegion paints the outermost thickness pixels of r with c. The
// stroke is clipped to r, so a thickness of at least half the shorter side
// fills the region.
func StrokeRegion(dst *raster.Frame, r raster.Region, c raster.Color, thickness int) {
	mustContain(dst, r)
	for _, band := range Bands(r, thickness) {
		FillRegion(dst, band, c)
	}
}

// Bands returns the disjoint-or-nested rectangles that make up a border of
// the given thickness inside r: top, bottom, then left and right between
// them. Bands are empty for thickness <= 0.
func Bands(r raster.Region, thickness int) []raster.Region {
	if thickness <= 0 {
		return nil
	}
	tx := min(thickness, r.W)
	ty := min(thickness, r.H)

	bands := make([]raster.Region, 0, 4)
	bands = append(bands, raster.Region{X: r.X, Y: r.Y, W: r.W, H: ty})
	if r.H > ty {
		bands = append(bands, raster.Region{X: r.X, Y: r.Y + r.H - ty, W: r.W, H: ty})
	}

	inner := r.H - 2*ty
	if inner <= 0 {
		return bands
	}
	bands = append(bands, raster.Region{X: r.X, Y: r.Y + ty, W: tx, H: inner})
	if r.W > tx {
		bands = append(bands, raster.Region{X: r.X + r.W - tx, Y: r.Y + ty, W: tx, H: inner})
	}
	return bands
}

func mustContain(dst *raster.Frame, r raster.Region) {
	if !r.Within(dst.Width, dst.Height) {
		panic(fmt.Sprintf("compose: region %v outside %dx%d frame", r, dst.Width, dst.Height))
	}
}
