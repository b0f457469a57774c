package rectanglify

import (
	"context"
	"time"
)

// FrameProcessor defines the contract for the per-frame core.
//
// Implementations must guarantee:
//   - Process() never observes a partially applied SetConfig
//   - SetConfig() rejects invalid configs without changing the active one
//   - Stats() is thread-safe (can be called from any goroutine)
type FrameProcessor interface {
	// Process paints one frame with the active configuration.
	Process(in *Frame) (*Frame, error)

	// SetConfig validates and activates cfg for subsequent frames.
	SetConfig(cfg Config) error

	// Config returns the active configuration.
	Config() Config

	// Stats returns processing statistics.
	Stats() ProcessorStats
}

// FrameFilter defines the contract for a running filter host.
//
// Implementations must guarantee:
//   - Start() returns immediately (non-blocking)
//   - Stop() is idempotent (safe to call multiple times)
//   - Stats() is thread-safe (can be called from any goroutine)
//   - SetConfig() does not require restart (hot-reload)
type FrameFilter interface {
	// Start builds the pipeline and begins processing in the background.
	//
	// Processed frames are pushed downstream to the configured sink and
	// offered to subscribers. Frames are dropped rather than queued when
	// processing falls behind.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the pipeline.
	//
	// Waits up to 3 seconds for goroutines to finish. Safe to call when the
	// filter is not running.
	Stop() error

	// Stats returns current filter statistics.
	Stats() FilterStats

	// SetConfig updates the processing configuration; the next frame uses it.
	SetConfig(cfg Config) error

	// Config returns the active processing configuration.
	Config() Config

	// Warmup measures output FPS stability over duration.
	//
	// Blocks for the entire duration. Returns an error if the filter is not
	// running, fewer than 2 frames are produced, or the output is unstable.
	Warmup(ctx context.Context, duration time.Duration) (*WarmupStats, error)

	// Subscribe registers a consumer of processed frames. The returned
	// function blocks for the next frame and returns nil once unsubscribed.
	Subscribe(id string) func() *StreamFrame

	// Unsubscribe removes a consumer. Idempotent.
	Unsubscribe(id string)
}

var (
	_ FrameProcessor = (*Processor)(nil)
	_ FrameFilter    = (*Filter)(nil)
)
