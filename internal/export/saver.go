package export

import (
	"bufio"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Liamolucko/rectanglify/internal/compose"
	"github.com/Liamolucko/rectanglify/internal/quadtree"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

// Supported FrameSaver formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatSVG  = "svg"
)

// FrameSaver writes every Nth frame to a directory as frame_000001.<ext>.
type FrameSaver struct {
	dir    string
	format string
	everyN uint64

	seen  atomic.Uint64
	saved atomic.Uint64
}

// NewFrameSaver creates dir if needed. everyN below 1 saves every frame.
func NewFrameSaver(dir, format string, everyN int) (*FrameSaver, error) {
	switch format {
	case FormatPNG, FormatJPEG, FormatSVG:
	case "jpg":
		format = FormatJPEG
	default:
		return nil, fmt.Errorf("export: unsupported format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create output dir: %w", err)
	}
	if everyN < 1 {
		everyN = 1
	}
	return &FrameSaver{dir: dir, format: format, everyN: uint64(everyN)}, nil
}

// Save writes img (or, for svg, tree) if this frame falls on the sampling
// interval. It returns the written path, or "" when the frame is skipped.
func (s *FrameSaver) Save(img *raster.Frame, tree *quadtree.Tree, style compose.Style) (string, error) {
	n := s.seen.Add(1)
	if (n-1)%s.everyN != 0 {
		return "", nil
	}
	idx := s.saved.Add(1)

	ext := s.format
	if ext == FormatJPEG {
		ext = "jpg"
	}
	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.%s", idx, ext))

	if err := s.write(path, img, tree, style); err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{
		"path":  path,
		"frame": n,
	}).Debug("export: frame saved")
	return path, nil
}

// Saved returns the number of files written.
func (s *FrameSaver) Saved() uint64 {
	return s.saved.Load()
}

func (s *FrameSaver) write(path string, img *raster.Frame, tree *quadtree.Tree, style compose.Style) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)

	switch s.format {
	case FormatPNG:
		err = png.Encode(w, img.ToRGBA())
	case FormatJPEG:
		err = jpeg.Encode(w, img.ToRGBA(), &jpeg.Options{Quality: 90})
	case FormatSVG:
		if tree == nil {
			err = fmt.Errorf("no decomposition for svg output")
			break
		}
		WriteSVG(w, tree, img.Width, img.Height, style)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}
