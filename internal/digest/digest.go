// Package digest fingerprints painted frames so that runs can be compared
// byte for byte without keeping the frames.
package digest

import (
	"encoding/binary"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/Liamolucko/rectanglify/internal/raster"
)

// Sum returns the hex BLAKE2b-256 digest of one frame, dimensions included.
func Sum(f *raster.Frame) string {
	h := newHash()
	writeFrame(h, f)
	return hex.EncodeToString(h.Sum(nil))
}

// Video accumulates a digest over a sequence of frames. The digest depends
// on frame order. Not safe for concurrent use.
type Video struct {
	h      hash.Hash
	frames int
}

// NewVideo returns an empty sequence digest.
func NewVideo() *Video {
	return &Video{h: newHash()}
}

// Frame adds f to the sequence.
func (v *Video) Frame(f *raster.Frame) {
	writeFrame(v.h, f)
	v.frames++
}

// Frames returns the number of frames added since the last Reset.
func (v *Video) Frames() int {
	return v.frames
}

// Hash returns the hex digest of every frame added so far.
func (v *Video) Hash() string {
	return hex.EncodeToString(v.h.Sum(nil))
}

// Reset clears the sequence.
func (v *Video) Reset() {
	v.h.Reset()
	v.frames = 0
}

func newHash() hash.Hash {
	// New256 only fails for keys longer than 64 bytes.
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	return h
}

func writeFrame(h hash.Hash, f *raster.Frame) {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(f.Width))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(f.Height))
	h.Write(hdr[:])
	h.Write(f.Pix)
}
