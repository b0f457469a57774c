package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Liamolucko/rectanglify"
	"github.com/Liamolucko/rectanglify/internal/digest"
	"github.com/Liamolucko/rectanglify/internal/ffsource"
)

func runVideo(args []string) error {
	fs := flag.NewFlagSet("video", flag.ExitOnError)
	pf := addProcessingFlags(fs)
	maxWidth := fs.Int("max-width", 0, "Downscale wider videos to this width (0 = keep)")
	fps := fs.Float64("fps", 0, "Resample to this frame rate (0 = keep)")
	maxFrames := fs.Int("max-frames", 0, "Stop after this many frames (0 = all)")
	withDigest := fs.Bool("digest", false, "Print the BLAKE2b digest of the output frames")
	fs.Parse(args)
	pf.setupLogging()

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: rectanglify video [flags] <input> <output>")
	}
	in, out := fs.Arg(0), fs.Arg(1)

	cfg, err := pf.config()
	if err != nil {
		return err
	}
	proc, err := rectanglify.NewProcessor(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := ffsource.Open(ctx, in, ffsource.Options{MaxWidth: *maxWidth, FPS: *fps})
	if err != nil {
		return err
	}
	defer src.Close()

	if err := cfg.ValidateFor(src.Width, src.Height); err != nil {
		return err
	}

	rate := *fps
	if rate <= 0 {
		rate = src.Info.FPS
	}
	dst, err := ffsource.Create(ctx, out, src.Width, src.Height, rate)
	if err != nil {
		return err
	}

	var video *digest.Video
	if *withDigest {
		video = digest.NewVideo()
	}

	start := time.Now()
	lastReport := start
	frames := 0
	for *maxFrames == 0 || frames < *maxFrames {
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			dst.Close()
			return err
		}

		res, err := proc.Run(frame)
		if err != nil {
			dst.Close()
			return err
		}
		if err := dst.Write(res.Output); err != nil {
			dst.Close()
			return err
		}
		if video != nil {
			video.Frame(res.Output)
		}
		frames++

		if time.Since(lastReport) >= 5*time.Second {
			lastReport = time.Now()
			stats := proc.Stats()
			logrus.WithFields(logrus.Fields{
				"frames":       frames,
				"total":        src.Info.Frames,
				"last_leaves":  stats.LastLeaves,
				"latency_mean": fmt.Sprintf("%.1fms", stats.LatencyMeanMS),
			}).Info("rectanglify: progress")
		}
	}

	if err := dst.Close(); err != nil {
		return err
	}

	stats := proc.Stats()
	logrus.WithFields(logrus.Fields{
		"frames":      frames,
		"elapsed":     time.Since(start).Round(time.Millisecond),
		"leaves_mean": meanLeaves(stats),
		"latency_p95": fmt.Sprintf("%.1fms", stats.LatencyP95MS),
		"output":      out,
	}).Info("rectanglify: video processed")

	if video != nil {
		fmt.Println(video.Hash())
	}
	return nil
}

func meanLeaves(s rectanglify.ProcessorStats) float64 {
	if s.FramesProcessed == 0 {
		return 0
	}
	return float64(s.LeavesTotal) / float64(s.FramesProcessed)
}
