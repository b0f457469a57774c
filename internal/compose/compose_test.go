package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liamolucko/rectanglify/internal/integral"
	"github.com/Liamolucko/rectanglify/internal/quadtree"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

var (
	red   = raster.Color{R: 255}
	blue  = raster.Color{B: 255}
	white = raster.Color{R: 255, G: 255, B: 255}
)

// goldenFrame is 8x8 black with a 2x2 white block at (4,4).
func goldenFrame() *raster.Frame {
	f := raster.NewFrame(8, 8)
	FillRegion(f, raster.Region{X: 4, Y: 4, W: 2, H: 2}, white)
	return f
}

func render(f *raster.Frame, style Style) *raster.Frame {
	tree := quadtree.Decompose(integral.Build(f), f.Bounds(), quadtree.Params{Threshold: 0, MinSize: 1, MaxDepth: 3})
	out := raster.NewFrame(f.Width, f.Height)
	Render(tree, out, style)
	return out
}

func TestRender_ReproducesExactDecomposition(t *testing.T) {
	f := goldenFrame()
	out := render(f, Style{})
	assert.Equal(t, f.Pix, out.Pix)
}

func TestRender_FillsEveryPixel(t *testing.T) {
	f := raster.NewFrame(13, 9)
	FillRegion(f, f.Bounds(), raster.Color{R: 40, G: 50, B: 60})
	FillRegion(f, raster.Region{X: 7, Y: 2, W: 5, H: 6}, raster.Color{R: 200, G: 10, B: 10})

	tree := quadtree.Decompose(integral.Build(f), f.Bounds(), quadtree.Params{Threshold: 50, MinSize: 2, MaxDepth: 4})

	// Start from a frame full of a sentinel so unpainted pixels show up.
	out := raster.NewFrame(f.Width, f.Height)
	FillRegion(out, out.Bounds(), raster.Color{R: 1, G: 2, B: 3})
	Render(tree, out, Style{})

	for _, leaf := range tree.Leaves() {
		r := leaf.Region
		for y := r.Y; y < r.Y+r.H; y++ {
			for x := r.X; x < r.X+r.W; x++ {
				require.Equal(t, leaf.Color, out.At(x, y), "pixel (%d,%d)", x, y)
			}
		}
	}
}

func TestStrokeRegion(t *testing.T) {
	tests := []struct {
		name      string
		region    raster.Region
		thickness int
		border    []string // rows of a 6x5 frame: 'b' border, '.' untouched
	}{
		{
			name:      "thickness_1",
			region:    raster.Region{X: 1, Y: 1, W: 4, H: 3},
			thickness: 1,
			border: []string{
				"......",
				".bbbb.",
				".b..b.",
				".bbbb.",
				"......",
			},
		},
		{
			name:      "thickness_2_clipped_to_region",
			region:    raster.Region{X: 0, Y: 0, W: 6, H: 5},
			thickness: 2,
			border: []string{
				"bbbbbb",
				"bbbbbb",
				"bb..bb",
				"bbbbbb",
				"bbbbbb",
			},
		},
		{
			name:      "thickness_exceeds_region",
			region:    raster.Region{X: 2, Y: 1, W: 2, H: 3},
			thickness: 5,
			border: []string{
				"......",
				"..bb..",
				"..bb..",
				"..bb..",
				"......",
			},
		},
		{
			name:      "single_pixel_region",
			region:    raster.Region{X: 5, Y: 4, W: 1, H: 1},
			thickness: 1,
			border: []string{
				"......",
				"......",
				"......",
				"......",
				".....b",
			},
		},
		{
			name:      "zero_thickness_draws_nothing",
			region:    raster.Region{X: 0, Y: 0, W: 6, H: 5},
			thickness: 0,
			border: []string{
				"......",
				"......",
				"......",
				"......",
				"......",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := raster.NewFrame(6, 5)
			StrokeRegion(f, tt.region, red, tt.thickness)

			for y, row := range tt.border {
				for x, ch := range row {
					want := raster.Color{}
					if ch == 'b' {
						want = red
					}
					assert.Equal(t, want, f.At(x, y), "pixel (%d,%d)", x, y)
				}
			}
		})
	}
}

func TestRender_Borders(t *testing.T) {
	f := goldenFrame()
	out := render(f, Style{DrawBorders: true, BorderColor: blue, BorderThickness: 1})

	// Corner of the top-left 4x4 leaf is border, its interior keeps the fill.
	assert.Equal(t, blue, out.At(0, 0))
	assert.Equal(t, blue, out.At(3, 3))
	assert.Equal(t, raster.Color{}, out.At(1, 1))

	// 2x2 leaves are all border at thickness 1.
	assert.Equal(t, blue, out.At(4, 4))
	assert.Equal(t, blue, out.At(5, 5))

	// Borders disabled leaves the fill alone even with a thickness set.
	plain := render(f, Style{DrawBorders: false, BorderColor: blue, BorderThickness: 3})
	assert.Equal(t, f.Pix, plain.Pix)
}

func TestFillRegionOutOfBoundsPanics(t *testing.T) {
	f := raster.NewFrame(4, 4)
	assert.Panics(t, func() { FillRegion(f, raster.Region{X: 2, Y: 2, W: 3, H: 1}, red) })
	assert.Panics(t, func() { StrokeRegion(f, raster.Region{X: -1, Y: 0, W: 2, H: 2}, red, 1) })
}

func TestBands(t *testing.T) {
	tests := []struct {
		name      string
		r         raster.Region
		thickness int
		want      []raster.Region
	}{
		{name: "zero thickness", r: raster.Region{W: 4, H: 4}, thickness: 0},
		{
			name:      "square",
			r:         raster.Region{X: 1, Y: 2, W: 4, H: 4},
			thickness: 1,
			want: []raster.Region{
				{X: 1, Y: 2, W: 4, H: 1},
				{X: 1, Y: 5, W: 4, H: 1},
				{X: 1, Y: 3, W: 1, H: 2},
				{X: 4, Y: 3, W: 1, H: 2},
			},
		},
		{
			name:      "no inner rows",
			r:         raster.Region{W: 2, H: 2},
			thickness: 1,
			want: []raster.Region{
				{W: 2, H: 1},
				{Y: 1, W: 2, H: 1},
			},
		},
		{
			name:      "clipped to region",
			r:         raster.Region{W: 3, H: 1},
			thickness: 5,
			want:      []raster.Region{{W: 3, H: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Bands(tt.r, tt.thickness))
		})
	}
}
