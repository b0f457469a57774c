// Package integral builds per-frame summed-area tables so that the pixel
// count, per-channel sum and per-channel sum of squares of any rectangle can
// be read in constant time.
package integral

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/Liamolucko/rectanglify/internal/raster"
)

// Table holds one padded (W+1)x(H+1) prefix table per channel for sums and
// one for sums of squares. Row 0 and column 0 are zero, so entry (x, y)
// covers all pixels with x' < x and y' < y.
type Table struct {
	width  int
	height int
	stride int

	sum   [raster.Channels][]uint64
	sumSq [raster.Channels][]uint64
}

// Build computes the tables for f in a single pass over its pixels.
func Build(f *raster.Frame) *Table {
	stride := f.Width + 1
	size := stride * (f.Height + 1)

	t := &Table{width: f.Width, height: f.Height, stride: stride}
	for c := 0; c < raster.Channels; c++ {
		t.sum[c] = make([]uint64, size)
		t.sumSq[c] = make([]uint64, size)
	}

	var rowSum, rowSq [raster.Channels]uint64
	for y := 0; y < f.Height; y++ {
		rowSum = [raster.Channels]uint64{}
		rowSq = [raster.Channels]uint64{}

		src := f.Pix[y*f.Stride():]
		above := y * stride
		here := (y + 1) * stride
		for x := 0; x < f.Width; x++ {
			for c := 0; c < raster.Channels; c++ {
				v := uint64(src[x*raster.Channels+c])
				rowSum[c] += v
				rowSq[c] += v * v
				t.sum[c][here+x+1] = t.sum[c][above+x+1] + rowSum[c]
				t.sumSq[c][here+x+1] = t.sumSq[c][above+x+1] + rowSq[c]
			}
		}
	}
	return t
}

// Width returns the width of the frame the table was built from.
func (t *Table) Width() int { return t.width }

// Height returns the height of the frame the table was built from.
func (t *Table) Height() int { return t.height }

// Bounds returns the region covering the whole frame.
func (t *Table) Bounds() raster.Region {
	return raster.Region{W: t.width, H: t.height}
}

// Query returns the aggregates for r using four corner lookups per channel.
// It panics if r is not inside the frame.
func (t *Table) Query(r raster.Region) Stats {
	if !r.Within(t.width, t.height) {
		panic(fmt.Sprintf("integral: region %v outside %dx%d frame", r, t.width, t.height))
	}

	a := r.Y*t.stride + r.X
	b := r.Y*t.stride + r.X + r.W
	c := (r.Y+r.H)*t.stride + r.X
	d := (r.Y+r.H)*t.stride + r.X + r.W

	s := Stats{Count: uint64(r.Area())}
	for ch := 0; ch < raster.Channels; ch++ {
		s.Sum[ch] = t.sum[ch][d] - t.sum[ch][b] - t.sum[ch][c] + t.sum[ch][a]
		s.SumSq[ch] = t.sumSq[ch][d] - t.sumSq[ch][b] - t.sumSq[ch][c] + t.sumSq[ch][a]
	}
	return s
}

// Stats are the raw aggregates of one region.
type Stats struct {
	Count uint64
	Sum   [raster.Channels]uint64
	SumSq [raster.Channels]uint64
}

// MeanF returns the per-channel mean.
func (s Stats) MeanF() [raster.Channels]float64 {
	var m [raster.Channels]float64
	if s.Count == 0 {
		return m
	}
	for c := range m {
		m[c] = float64(s.Sum[c]) / float64(s.Count)
	}
	return m
}

// Mean returns the per-channel mean rounded half up and clamped to 0..255.
func (s Stats) Mean() raster.Color {
	if s.Count == 0 {
		return raster.Color{}
	}
	var out [raster.Channels]uint8
	for c := range out {
		v := (s.Sum[c] + s.Count/2) / s.Count
		if v > math.MaxUint8 {
			v = math.MaxUint8
		}
		out[c] = uint8(v)
	}
	return raster.Color{R: out[0], G: out[1], B: out[2]}
}

// ChannelVariance returns the population variance of channel c.
//
// The numerator n*sumSq - sum^2 is evaluated in 128-bit integer arithmetic,
// so a region whose samples are all equal yields exactly 0.
func (s Stats) ChannelVariance(c int) float64 {
	if s.Count == 0 {
		return 0
	}
	hi1, lo1 := bits.Mul64(s.Count, s.SumSq[c])
	hi2, lo2 := bits.Mul64(s.Sum[c], s.Sum[c])
	lo, borrow := bits.Sub64(lo1, lo2, 0)
	hi, _ := bits.Sub64(hi1, hi2, borrow)

	num := float64(hi)*(1<<64) + float64(lo)
	n := float64(s.Count)
	return num / (n * n)
}

// Variance returns the region variance: the sum of the three per-channel
// population variances.
func (s Stats) Variance() float64 {
	var v float64
	for c := 0; c < raster.Channels; c++ {
		v += s.ChannelVariance(c)
	}
	return v
}
