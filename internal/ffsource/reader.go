package ffsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/Liamolucko/rectanglify/internal/raster"
)

// Options controls decoding.
type Options struct {
	// MaxWidth downscales wider videos, keeping the aspect ratio.
	MaxWidth int
	// FPS resamples the video; 0 keeps the source rate.
	FPS float64
}

// Reader decodes a video file into RGB24 frames.
type Reader struct {
	Info   Info
	Width  int
	Height int

	pipe   *io.PipeReader
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stderr bytes.Buffer
	runErr error
}

// Open starts decoding path. Frames are read with Next; Close must be
// called to release the ffmpeg process.
func Open(ctx context.Context, path string, opts Options) (*Reader, error) {
	info, err := Probe(path)
	if err != nil {
		return nil, err
	}
	width, height := ScaledSize(info.Width, info.Height, opts.MaxWidth)

	filters := []string{fmt.Sprintf("scale=%d:%d", width, height)}
	if opts.FPS > 0 {
		filters = append(filters, "fps="+strconv.FormatFloat(opts.FPS, 'f', -1, 64))
	}

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	r := &Reader{
		Info:   info,
		Width:  width,
		Height: height,
		pipe:   pr,
		cancel: cancel,
	}

	cmd := ffmpeg.Input(path).
		Output("pipe:1", ffmpeg.KwArgs{
			"format":  "rawvideo",
			"pix_fmt": "rgb24",
			"vf":      strings.Join(filters, ","),
		}).
		GlobalArgs("-loglevel", "error").
		WithOutput(pw).
		WithErrorOutput(&r.stderr)
	cmd.Context = ctx

	logrus.WithFields(logrus.Fields{
		"path":   path,
		"source": fmt.Sprintf("%dx%d", info.Width, info.Height),
		"output": fmt.Sprintf("%dx%d", width, height),
		"fps":    info.FPS,
	}).Info("ffsource: decoding video")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := cmd.Run()
		if err != nil {
			r.runErr = fmt.Errorf("ffmpeg decode failed: %w: %s", err, strings.TrimSpace(r.stderr.String()))
			pw.CloseWithError(r.runErr)
			return
		}
		pw.Close()
	}()

	return r, nil
}

// Next returns the next frame, or io.EOF after the last one.
func (r *Reader) Next() (*raster.Frame, error) {
	f := raster.NewFrame(r.Width, r.Height)
	_, err := io.ReadFull(r.pipe, f.Pix)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("ffsource: truncated frame: %w", err)
	default:
		return nil, err
	}
}

// Close stops ffmpeg and waits for it to exit.
func (r *Reader) Close() error {
	r.cancel()
	r.pipe.Close()
	r.wg.Wait()
	return nil
}
