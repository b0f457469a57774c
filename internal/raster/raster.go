// Package raster holds the pixel types shared by every stage of the
// rectanglify pipeline.
//
// Frames are always packed RGB24 (3 bytes per pixel, row-major, no padding).
// This matches the "video/x-raw,format=RGB" caps requested from GStreamer, so
// buffers pulled from an appsink can be wrapped without conversion.
package raster

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Channels is the number of samples per pixel in a Frame.
const Channels = 3

// Color is a single RGB24 pixel value.
type Color struct {
	R, G, B uint8
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}.RGBA()
}

// String returns the color as #rrggbb.
func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Region is an axis-aligned rectangle inside a frame.
type Region struct {
	X, Y, W, H int
}

// Area returns the number of pixels covered by the region.
func (r Region) Area() int {
	return r.W * r.H
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Within reports whether r lies entirely inside a width x height frame.
func (r Region) Within(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.W >= 1 && r.H >= 1 &&
		r.X+r.W <= width && r.Y+r.H <= height
}

// Contains reports whether the pixel (x, y) is inside r.
func (r Region) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Image converts the region to an image.Rectangle.
func (r Region) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// String formats the region as WxH+X+Y.
func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.W, r.H, r.X, r.Y)
}

// Frame is a packed RGB24 image.
type Frame struct {
	Width  int
	Height int
	// Pix holds Width*Height*3 bytes, row-major, stride 3*Width.
	Pix []byte
}

// NewFrame allocates a black frame.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*Channels),
	}
}

// Wrap validates a packed RGB24 buffer and wraps it without copying.
func Wrap(pix []byte, width, height int) (*Frame, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("raster: invalid dimensions %dx%d", width, height)
	}
	if want := width * height * Channels; len(pix) != want {
		return nil, fmt.Errorf("raster: invalid RGB data size: got %d, expected %d", len(pix), want)
	}
	return &Frame{Width: width, Height: height, Pix: pix}, nil
}

// Stride returns the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * Channels
}

// Bounds returns the region covering the whole frame.
func (f *Frame) Bounds() Region {
	return Region{W: f.Width, H: f.Height}
}

// Offset returns the index of the first byte of pixel (x, y).
func (f *Frame) Offset(x, y int) int {
	return y*f.Stride() + x*Channels
}

// At returns the color of pixel (x, y).
func (f *Frame) At(x, y int) Color {
	i := f.Offset(x, y)
	return Color{R: f.Pix[i], G: f.Pix[i+1], B: f.Pix[i+2]}
}

// Set writes the color of pixel (x, y).
func (f *Frame) Set(x, y int, c Color) {
	i := f.Offset(x, y)
	f.Pix[i] = c.R
	f.Pix[i+1] = c.G
	f.Pix[i+2] = c.B
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// ToRGBA converts the frame to an *image.RGBA with an opaque alpha channel.
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		img.Pix[i*4+0] = f.Pix[i*3+0]
		img.Pix[i*4+1] = f.Pix[i*3+1]
		img.Pix[i*4+2] = f.Pix[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// FromImage converts any image.Image to a packed RGB24 frame. Gray, paletted
// and YCbCr sources go through draw.Draw onto an RGBA canvas first, so the
// alpha channel is composited over black.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	f := NewFrame(b.Dx(), b.Dy())
	for y := 0; y < f.Height; y++ {
		src := rgba.Pix[y*rgba.Stride:]
		dst := f.Pix[y*f.Stride():]
		for x := 0; x < f.Width; x++ {
			dst[x*3+0] = src[x*4+0]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return f
}

// Scale resizes img so that its width is at most maxWidth, keeping the aspect
// ratio. Images already narrow enough are returned unchanged.
func Scale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
