package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name    string
		pix     []byte
		width   int
		height  int
		wantErr string
	}{
		{name: "valid", pix: make([]byte, 2*3*3), width: 2, height: 3},
		{name: "zero width", pix: nil, width: 0, height: 3, wantErr: "invalid dimensions"},
		{name: "negative height", pix: nil, width: 2, height: -1, wantErr: "invalid dimensions"},
		{name: "short buffer", pix: make([]byte, 5), width: 2, height: 3, wantErr: "invalid RGB data size"},
		{name: "rgba sized buffer", pix: make([]byte, 2*3*4), width: 2, height: 3, wantErr: "invalid RGB data size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Wrap(tt.pix, tt.width, tt.height)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.width, f.Width)
			assert.Equal(t, tt.height, f.Height)
		})
	}
}

func TestFrameSetAt(t *testing.T) {
	f := NewFrame(4, 3)
	c := Color{R: 10, G: 20, B: 30}
	f.Set(3, 2, c)

	assert.Equal(t, c, f.At(3, 2))
	assert.Equal(t, Color{}, f.At(0, 0))
	assert.Equal(t, 12, f.Stride())
	assert.Equal(t, len(f.Pix)-3, f.Offset(3, 2))
}

func TestRegion(t *testing.T) {
	r := Region{X: 2, Y: 1, W: 3, H: 2}

	assert.Equal(t, 6, r.Area())
	assert.False(t, r.Empty())
	assert.True(t, r.Within(5, 3))
	assert.False(t, r.Within(4, 3))
	assert.True(t, r.Contains(4, 2))
	assert.False(t, r.Contains(5, 2))
	assert.Equal(t, image.Rect(2, 1, 5, 3), r.Image())
	assert.Equal(t, "3x2+2+1", r.String())
}

func TestImageRoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})
	src.Set(2, 1, color.NRGBA{G: 128, B: 64, A: 255})

	f := FromImage(src)
	require.Equal(t, 3, f.Width)
	require.Equal(t, 2, f.Height)
	assert.Equal(t, Color{R: 255}, f.At(0, 0))
	assert.Equal(t, Color{G: 128, B: 64}, f.At(2, 1))

	back := f.ToRGBA()
	assert.Equal(t, color.RGBA{R: 255, A: 255}, back.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{G: 128, B: 64, A: 255}, back.RGBAAt(2, 1))
}

func TestFromImageGray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 2))
	src.SetGray(1, 1, color.Gray{Y: 200})

	f := FromImage(src)
	assert.Equal(t, Color{R: 200, G: 200, B: 200}, f.At(1, 1))
	assert.Equal(t, Color{}, f.At(0, 0))
}

func TestScale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))

	assert.Same(t, image.Image(src), Scale(src, 0))
	assert.Same(t, image.Image(src), Scale(src, 400))

	scaled := Scale(src, 50)
	assert.Equal(t, image.Rect(0, 0, 50, 25), scaled.Bounds())
}

func TestColorString(t *testing.T) {
	assert.Equal(t, "#ff8000", Color{R: 255, G: 128}.String())
}
