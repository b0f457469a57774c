// Package rectanglify approximates video frames with flat-colored rectangles.
//
// Each frame is split recursively into quadrants until a region is uniform
// enough (its color variance is at most a threshold), too small to split, or
// too deep. Every remaining region is painted with its mean color, optionally
// outlined.
//
// # Quick Start
//
// Process a single packed RGB24 buffer:
//
//	cfg := rectanglify.DefaultConfig()
//	cfg.VarianceThreshold = 250
//	cfg.DrawBorders = true
//
//	out, err := rectanglify.ProcessFrame(pix, width, height, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Run a long-lived processor whose configuration can change while frames
// are in flight:
//
//	proc, err := rectanglify.NewProcessor(rectanglify.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go func() {
//	    // Takes effect on the next frame.
//	    _ = proc.SetConfig(newCfg)
//	}()
//
//	for frame := range frames {
//	    out, _ := proc.Process(frame)
//	    emit(out)
//	}
//
// Host the processor inside a GStreamer pipeline:
//
//	filter, err := rectanglify.NewFilter(rectanglify.FilterConfig{
//	    Source:       "v4l2src",
//	    Sink:         "autovideosink",
//	    Processing:   rectanglify.DefaultConfig(),
//	    SourceStream: "camera-1",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer filter.Stop()
//
//	if err := filter.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	<-filter.Done()
//
// # Decomposition
//
// Region statistics come from per-channel integral tables built once per
// frame, so the mean and variance of any rectangle cost four lookups per
// channel. The variance of a region is the sum of the population variances
// of its R, G and B channels.
//
// A region is a leaf when any of these hold:
//
//   - its variance is at most VarianceThreshold
//   - its width or height is at most MinRegionSize
//   - its depth equals MaxDepth
//
// Otherwise it is split at W/2 and H/2. An axis whose half would fall below
// MinRegionSize is not split, so a region may have two children instead of
// four; if neither axis can be split it stays a leaf.
//
// # Configuration Snapshots
//
// Config is a value. Processor publishes each accepted Config atomically
// and every frame pass loads it exactly once, so a pass never observes a
// half-applied update. Invalid configurations are rejected by SetConfig and
// never become active.
//
// # Frame Format
//
// Frames are packed RGB24:
//
//   - Format: Interleaved RGB (RGBRGBRGB...)
//   - Size: Width × Height × 3 bytes
//   - Example (720p): 1280 × 720 × 3 = 2,764,800 bytes (~2.6 MB)
//
// The Filter asks GStreamer to convert to and from this layout.
package rectanglify
