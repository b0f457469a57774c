package export

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Liamolucko/rectanglify/internal/compose"
	"github.com/Liamolucko/rectanglify/internal/quadtree"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

// Leaf is one flat-colour rectangle of a dump.
type Leaf struct {
	X     int   `msgpack:"x"`
	Y     int   `msgpack:"y"`
	W     int   `msgpack:"w"`
	H     int   `msgpack:"h"`
	R     uint8 `msgpack:"r"`
	G     uint8 `msgpack:"g"`
	B     uint8 `msgpack:"b"`
	Depth int   `msgpack:"depth"`
}

// Dump is the serialized form of a decomposition: frame size plus leaves
// in enumeration order.
type Dump struct {
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Leaves []Leaf `msgpack:"leaves"`
}

// NewDump flattens the leaves of tree.
func NewDump(tree *quadtree.Tree, width, height int) *Dump {
	d := &Dump{
		Width:  width,
		Height: height,
		Leaves: make([]Leaf, 0, tree.LeafCount()),
	}
	for _, n := range tree.Leaves() {
		d.Leaves = append(d.Leaves, Leaf{
			X: n.Region.X, Y: n.Region.Y, W: n.Region.W, H: n.Region.H,
			R: n.Color.R, G: n.Color.G, B: n.Color.B,
			Depth: n.Depth,
		})
	}
	return d
}

// WriteLeaves writes a zstd-compressed msgpack Dump of tree.
func WriteLeaves(w io.Writer, tree *quadtree.Tree, width, height int) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("export: create zstd writer: %w", err)
	}
	if err := msgpack.NewEncoder(enc).Encode(NewDump(tree, width, height)); err != nil {
		enc.Close()
		return fmt.Errorf("export: encode leaves: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("export: flush leaves: %w", err)
	}
	return nil
}

// ReadLeaves reads a Dump written by WriteLeaves.
func ReadLeaves(r io.Reader) (*Dump, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("export: create zstd reader: %w", err)
	}
	defer dec.Close()

	var d Dump
	if err := msgpack.NewDecoder(dec).Decode(&d); err != nil {
		return nil, fmt.Errorf("export: decode leaves: %w", err)
	}
	return &d, nil
}

// Render repaints the dump. Borders are applied per leaf with style, as the
// compositor does.
func (d *Dump) Render(style compose.Style) (*raster.Frame, error) {
	if d.Width < 1 || d.Height < 1 {
		return nil, fmt.Errorf("export: invalid dump size %dx%d", d.Width, d.Height)
	}
	dst := raster.NewFrame(d.Width, d.Height)
	for i, l := range d.Leaves {
		r := raster.Region{X: l.X, Y: l.Y, W: l.W, H: l.H}
		if !r.Within(d.Width, d.Height) {
			return nil, fmt.Errorf("export: leaf %d (%v) outside %dx%d frame", i, r, d.Width, d.Height)
		}
		compose.FillRegion(dst, r, raster.Color{R: l.R, G: l.G, B: l.B})
		if style.DrawBorders && style.BorderThickness > 0 {
			compose.StrokeRegion(dst, r, style.BorderColor, style.BorderThickness)
		}
	}
	return dst, nil
}
