package rectanglify

import (
	"time"

	"github.com/Liamolucko/rectanglify/internal/mailbox"
	"github.com/Liamolucko/rectanglify/internal/quadtree"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

// Frame is a packed RGB24 image (3 bytes per pixel, row-major).
type Frame = raster.Frame

// Region is an axis-aligned rectangle inside a frame.
type Region = raster.Region

// Color is an RGB24 pixel value.
type Color = raster.Color

// Tree is a rectangle decomposition of one frame.
type Tree = quadtree.Tree

// Node is one region of a Tree.
type Node = quadtree.Node

// StreamFrame is a processed frame delivered to Filter subscribers.
type StreamFrame = mailbox.Frame

// Config holds the tunable parameters of the filter.
//
// Config is a value type. A Processor publishes each accepted Config as an
// immutable snapshot; a frame pass reads one snapshot for its whole duration.
type Config struct {
	// VarianceThreshold is the largest region variance (sum of the three
	// per-channel variances) rendered as one rectangle.
	VarianceThreshold float64 `json:"variance_threshold"`
	// MinRegionSize is the smallest side length a region may be split to.
	MinRegionSize int `json:"min_region_size"`
	// MaxDepth caps the depth of the decomposition (root is depth 0).
	MaxDepth int `json:"max_depth"`
	// DrawBorders outlines every leaf rectangle.
	DrawBorders bool `json:"draw_borders"`
	// BorderColor is the outline color.
	BorderColor Color `json:"-"`
	// BorderThickness is the outline width in pixels, clipped to the leaf.
	BorderThickness int `json:"border_thickness"`
	// Parallelism bounds how many subtrees are decomposed concurrently.
	// 0 or 1 keeps decomposition on the calling goroutine.
	Parallelism int `json:"parallelism"`
}

// Result is the outcome of one frame pass.
type Result struct {
	// Output is the painted frame, same dimensions as the input.
	Output *Frame
	// Tree is the decomposition the output was painted from.
	Tree *Tree
	// Config is the snapshot used for the whole pass.
	Config Config
	// Elapsed is the wall time of the pass.
	Elapsed time.Duration
}

// ProcessorStats contains processor statistics.
type ProcessorStats struct {
	// FramesProcessed is the number of completed frame passes.
	FramesProcessed uint64
	// LeavesTotal is the sum of leaf counts over all passes.
	LeavesTotal uint64
	// LastLeaves is the leaf count of the most recent pass.
	LastLeaves int
	// LastDepth is the deepest node of the most recent pass.
	LastDepth int
	// LatencyMeanMS, LatencyP95MS and LatencyMaxMS summarize the most
	// recent pass durations.
	LatencyMeanMS float64
	LatencyP95MS  float64
	LatencyMaxMS  float64
	// ConfigVersion increments on every accepted SetConfig.
	ConfigVersion uint64
}

// FilterConfig contains configuration for the GStreamer filter host.
type FilterConfig struct {
	// Source is a gst-launch fragment producing raw video, e.g.
	// "v4l2src" or "filesrc location=in.mp4 ! decodebin" (required).
	Source string
	// Sink is a gst-launch fragment consuming raw video, e.g.
	// "autovideosink" (required).
	Sink string
	// Processing is the initial processing configuration.
	Processing Config
	// OutputFPS is advertised on the output caps. 0 means variable.
	OutputFPS float64
	// SourceStream labels frames and log lines.
	SourceStream string
	// QueueDepth is the capture queue size between the appsink callback
	// and the processing goroutine (default 2).
	QueueDepth int
	// MaxReconnectAttempts is the number of pipeline restarts after an
	// error before giving up (default 5).
	MaxReconnectAttempts int
	// ReconnectInitialDelay is the first backoff delay (default 1s).
	ReconnectInitialDelay time.Duration
	// ReconnectMaxDelay caps the backoff delay (default 30s).
	ReconnectMaxDelay time.Duration
}

// FilterStats contains current filter statistics.
type FilterStats struct {
	// FramesIn is the number of frames pulled from the appsink.
	FramesIn uint64
	// FramesOut is the number of frames pushed to the appsrc.
	FramesOut uint64
	// FramesDropped counts frames dropped because processing lagged.
	FramesDropped uint64
	// DropRate is the percentage of captured frames dropped (0-100).
	DropRate float64
	// FPSReal is the measured output rate.
	FPSReal float64
	// LatencyMS is the time since the last processed frame.
	LatencyMS int64
	// Resolution is the negotiated input size, e.g. "1280x720".
	Resolution string
	// SourceStream identifies the stream.
	SourceStream string
	// Reconnects is the number of pipeline restarts.
	Reconnects uint32
	// BytesRead is the total input bytes.
	BytesRead uint64
	// IsRunning indicates the pipeline is up.
	IsRunning bool
	// Error telemetry by category.
	ErrorsNetwork  uint64
	ErrorsFormat   uint64
	ErrorsResource uint64
	ErrorsUnknown  uint64
	// Processor holds the core statistics.
	Processor ProcessorStats
	// SubscriberDrops counts processed frames overwritten before a
	// subscriber read them.
	SubscriberDrops uint64
}

// WarmupStats contains statistics collected while measuring output
// stability.
type WarmupStats struct {
	// FramesReceived is the number of processed frames observed.
	FramesReceived int
	// Duration is the actual measurement duration.
	Duration time.Duration
	// FPSMean is the mean output FPS.
	FPSMean float64
	// FPSStdDev is the standard deviation of instantaneous FPS.
	FPSStdDev float64
	// FPSMin is the minimum instantaneous FPS.
	FPSMin float64
	// FPSMax is the maximum instantaneous FPS.
	FPSMax float64
	// IsStable is true if stddev < 15% of mean and jitter < 20% of the
	// frame interval.
	IsStable bool
	// JitterMean is the mean deviation from the expected frame interval
	// in seconds.
	JitterMean float64
	// JitterStdDev is the standard deviation of the jitter.
	JitterStdDev float64
	// JitterMax is the largest jitter observed.
	JitterMax float64
}
