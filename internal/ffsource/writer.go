package ffsource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/Liamolucko/rectanglify/internal/raster"
)

// Writer encodes RGB24 frames into a video file.
type Writer struct {
	width  int
	height int

	pipe   *io.PipeWriter
	wg     sync.WaitGroup
	stderr bytes.Buffer
	runErr error
	frames int
}

// Create starts an encoder writing path. The container is chosen by ffmpeg
// from the extension; an existing file is overwritten.
func Create(ctx context.Context, path string, width, height int, fps float64) (*Writer, error) {
	if width < 2 || height < 2 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("ffsource: output size %dx%d must be even", width, height)
	}
	if fps <= 0 {
		fps = 25
	}

	pr, pw := io.Pipe()
	w := &Writer{width: width, height: height, pipe: pw}

	cmd := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"format":  "rawvideo",
		"pix_fmt": "rgb24",
		"s":       fmt.Sprintf("%dx%d", width, height),
		"r":       strconv.FormatFloat(fps, 'f', -1, 64),
	}).
		Output(path, ffmpeg.KwArgs{"pix_fmt": "yuv420p"}).
		OverWriteOutput().
		GlobalArgs("-loglevel", "error").
		WithInput(pr).
		WithErrorOutput(&w.stderr)
	cmd.Context = ctx

	logrus.WithFields(logrus.Fields{
		"path": path,
		"size": fmt.Sprintf("%dx%d", width, height),
		"fps":  fps,
	}).Info("ffsource: encoding video")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := cmd.Run(); err != nil {
			w.runErr = fmt.Errorf("ffmpeg encode failed: %w: %s", err, strings.TrimSpace(w.stderr.String()))
			pr.CloseWithError(w.runErr)
			return
		}
		pr.Close()
	}()

	return w, nil
}

// Write appends one frame. It must match the size given to Create.
func (w *Writer) Write(f *raster.Frame) error {
	if f.Width != w.width || f.Height != w.height {
		return fmt.Errorf("ffsource: frame %dx%d does not match output %dx%d", f.Width, f.Height, w.width, w.height)
	}
	if _, err := w.pipe.Write(f.Pix); err != nil {
		return fmt.Errorf("ffsource: write frame %d: %w", w.frames, err)
	}
	w.frames++
	return nil
}

// Close finishes the file and waits for the encoder.
func (w *Writer) Close() error {
	w.pipe.Close()
	w.wg.Wait()
	if w.runErr != nil {
		return w.runErr
	}
	logrus.WithField("frames", w.frames).Debug("ffsource: encoder finished")
	return nil
}
