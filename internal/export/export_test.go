package export

import (
	"bytes"
	"errors"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liamolucko/rectanglify/internal/compose"
	"github.com/Liamolucko/rectanglify/internal/integral"
	"github.com/Liamolucko/rectanglify/internal/quadtree"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

var white = raster.Color{R: 255, G: 255, B: 255}

// goldenTree decomposes 8x8 black with a 2x2 white block at (4,4) into
// seven leaves.
func goldenTree(t *testing.T) (*raster.Frame, *quadtree.Tree) {
	t.Helper()
	f := raster.NewFrame(8, 8)
	compose.FillRegion(f, raster.Region{X: 4, Y: 4, W: 2, H: 2}, white)
	tree := quadtree.Decompose(integral.Build(f), f.Bounds(), quadtree.Params{Threshold: 0, MinSize: 1, MaxDepth: 3})
	require.Equal(t, 7, tree.LeafCount())
	return f, tree
}

func TestWriteSVG(t *testing.T) {
	_, tree := goldenTree(t)

	tests := []struct {
		name  string
		style compose.Style
		rects int
	}{
		{name: "plain", rects: 7},
		// Three 4x4 leaves get four bands each, four 2x2 leaves get two.
		{name: "borders", style: compose.Style{DrawBorders: true, BorderColor: raster.Color{R: 255}, BorderThickness: 1}, rects: 7 + 12 + 8},
		{name: "zero thickness", style: compose.Style{DrawBorders: true, BorderThickness: 0}, rects: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			WriteSVG(&buf, tree, 8, 8, tt.style)
			out := buf.String()

			assert.Contains(t, out, `width="8"`)
			assert.Contains(t, out, "</svg>")
			assert.Equal(t, tt.rects, strings.Count(out, "<rect"))
			assert.Contains(t, out, "fill:#ffffff")
		})
	}
}

func TestLeavesRoundTrip(t *testing.T) {
	f := raster.NewFrame(37, 29)
	rand.New(rand.NewSource(7)).Read(f.Pix)
	tree := quadtree.Decompose(integral.Build(f), f.Bounds(), quadtree.Params{Threshold: 2000, MinSize: 2, MaxDepth: 6})
	style := compose.Style{DrawBorders: true, BorderColor: raster.Color{G: 255}, BorderThickness: 1}

	var buf bytes.Buffer
	require.NoError(t, WriteLeaves(&buf, tree, f.Width, f.Height))

	dump, err := ReadLeaves(&buf)
	require.NoError(t, err)
	assert.Equal(t, 37, dump.Width)
	assert.Equal(t, 29, dump.Height)
	require.Len(t, dump.Leaves, tree.LeafCount())
	assert.Equal(t, NewDump(tree, f.Width, f.Height), dump)

	want := raster.NewFrame(f.Width, f.Height)
	compose.Render(tree, want, style)
	got, err := dump.Render(style)
	require.NoError(t, err)
	assert.Equal(t, want.Pix, got.Pix)
}

func TestReadLeaves_Corrupt(t *testing.T) {
	_, err := ReadLeaves(strings.NewReader("definitely not zstd"))
	assert.Error(t, err)
}

func TestDumpRender_Invalid(t *testing.T) {
	_, err := (&Dump{}).Render(compose.Style{})
	assert.Error(t, err)

	d := &Dump{Width: 4, Height: 4, Leaves: []Leaf{{X: 2, Y: 2, W: 4, H: 4}}}
	_, err = d.Render(compose.Style{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside 4x4 frame")
}

// failingWriter rejects every write.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteDot(t *testing.T) {
	_, tree := goldenTree(t)
	var buf bytes.Buffer
	require.NoError(t, WriteDot(&buf, tree, 8, 8))
	assert.Contains(t, buf.String(), "digraph")

	err := WriteDot(failingWriter{}, tree, 8, 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestFrameSaver(t *testing.T) {
	f, tree := goldenTree(t)
	dir := filepath.Join(t.TempDir(), "out")

	s, err := NewFrameSaver(dir, FormatPNG, 2)
	require.NoError(t, err)

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := s.Save(f, tree, compose.Style{})
		require.NoError(t, err)
		paths = append(paths, p)
	}
	assert.Equal(t, []string{filepath.Join(dir, "frame_000001.png"), "", filepath.Join(dir, "frame_000002.png")}, paths)
	assert.Equal(t, uint64(2), s.Saved())

	file, err := os.Open(paths[0])
	require.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	r, g, b, _ := img.At(4, 4).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b})
}

func TestFrameSaver_Formats(t *testing.T) {
	f, tree := goldenTree(t)

	s, err := NewFrameSaver(t.TempDir(), "jpg", 0)
	require.NoError(t, err)
	p, err := s.Save(f, tree, compose.Style{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, "frame_000001.jpg"))

	s, err = NewFrameSaver(t.TempDir(), FormatSVG, 1)
	require.NoError(t, err)
	p, err = s.Save(f, tree, compose.Style{})
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, 7, strings.Count(string(data), "<rect"))

	_, err = s.Save(f, nil, compose.Style{})
	assert.Error(t, err)

	_, err = NewFrameSaver(t.TempDir(), "gif", 1)
	assert.Error(t, err)
}
