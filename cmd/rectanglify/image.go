package main

import (
	"bufio"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Liamolucko/rectanglify"
	"github.com/Liamolucko/rectanglify/internal/digest"
	"github.com/Liamolucko/rectanglify/internal/export"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

// dumpFlags select the side outputs of a processed frame.
type dumpFlags struct {
	rects  string
	dot    string
	digest bool
}

func addDumpFlags(fs *flag.FlagSet) *dumpFlags {
	df := &dumpFlags{}
	fs.StringVar(&df.rects, "dump-rects", "", "Write the rectangle list (zstd-compressed msgpack) to this file")
	fs.StringVar(&df.dot, "dump-dot", "", "Write a Graphviz graph of the rectangles to this file")
	fs.BoolVar(&df.digest, "digest", false, "Print the BLAKE2b digest of the output")
	return df
}

func runImage(args []string) error {
	fs := flag.NewFlagSet("image", flag.ExitOnError)
	pf := addProcessingFlags(fs)
	df := addDumpFlags(fs)
	maxWidth := fs.Int("max-width", 0, "Downscale wider inputs to this width (0 = keep)")
	fs.Parse(args)
	pf.setupLogging()

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: rectanglify image [flags] <input> <output>")
	}
	in, out := fs.Arg(0), fs.Arg(1)

	cfg, err := pf.config()
	if err != nil {
		return err
	}

	img, err := decodeImage(in)
	if err != nil {
		return err
	}
	if *maxWidth > 0 {
		img = raster.Scale(img, *maxWidth)
	}
	frame := raster.FromImage(img)

	proc, err := rectanglify.NewProcessor(cfg)
	if err != nil {
		return err
	}
	res, err := proc.Run(frame)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"input":   in,
		"size":    fmt.Sprintf("%dx%d", frame.Width, frame.Height),
		"leaves":  res.Tree.LeafCount(),
		"depth":   res.Tree.MaxDepth(),
		"elapsed": res.Elapsed,
	}).Info("rectanglify: image processed")

	if err := writeImage(out, res); err != nil {
		return err
	}
	return df.write(res)
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	logrus.WithFields(logrus.Fields{"path": path, "format": format}).Debug("rectanglify: input decoded")
	return img, nil
}

// writeImage encodes the output by file extension.
func writeImage(path string, res *rectanglify.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	w := bufio.NewWriter(f)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		err = png.Encode(w, res.Output.ToRGBA())
	case ".jpg", ".jpeg":
		err = jpeg.Encode(w, res.Output.ToRGBA(), &jpeg.Options{Quality: 90})
	case ".svg":
		export.WriteSVG(w, res.Tree, res.Output.Width, res.Output.Height, styleOf(res.Config))
	default:
		err = fmt.Errorf("unsupported output format %q (use .png, .jpg or .svg)", ext)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (df *dumpFlags) write(res *rectanglify.Result) error {
	w, h := res.Output.Width, res.Output.Height
	if df.rects != "" {
		if err := writeFile(df.rects, func(f *os.File) error {
			return export.WriteLeaves(f, res.Tree, w, h)
		}); err != nil {
			return err
		}
	}
	if df.dot != "" {
		if err := writeFile(df.dot, func(f *os.File) error {
			return export.WriteDot(f, res.Tree, w, h)
		}); err != nil {
			return err
		}
	}
	if df.digest {
		fmt.Println(digest.Sum(res.Output))
	}
	return nil
}

func writeFile(path string, fn func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
