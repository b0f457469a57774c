package gstpipe

import "fmt"

// RowStride returns the default GStreamer stride of a packed RGB row:
// 3*width rounded up to a multiple of 4.
func RowStride(width int) int {
	return (width*3 + 3) &^ 3
}

// Unpad strips row padding from an RGB buffer. A buffer that is already
// tightly packed is returned as is.
func Unpad(data []byte, width, height int) ([]byte, error) {
	tight := width * 3
	if len(data) == tight*height {
		return data, nil
	}
	stride := RowStride(width)
	// The last row may be unpadded.
	if stride == tight || height < 1 || len(data) < stride*(height-1)+tight {
		return nil, fmt.Errorf("buffer size %d does not match %dx%d RGB", len(data), width, height)
	}

	out := make([]byte, tight*height)
	for y := 0; y < height; y++ {
		copy(out[y*tight:(y+1)*tight], data[y*stride:y*stride+tight])
	}
	return out, nil
}

// Pad lays out a tightly packed RGB buffer with GStreamer's default stride.
func Pad(pix []byte, width, height int) []byte {
	tight := width * 3
	stride := RowStride(width)
	if stride == tight {
		return pix
	}

	out := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		copy(out[y*stride:], pix[y*tight:(y+1)*tight])
	}
	return out
}
