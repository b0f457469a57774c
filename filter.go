package rectanglify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Liamolucko/rectanglify/internal/gstpipe"
	"github.com/Liamolucko/rectanglify/internal/mailbox"
	"github.com/Liamolucko/rectanglify/internal/raster"
)

const defaultQueueDepth = 2

// Filter runs the Processor inside a GStreamer pipeline: frames are pulled
// from an appsink behind the source fragment, painted, and pushed into an
// appsrc in front of the sink fragment.
type Filter struct {
	// Configuration
	source       string
	sink         string
	outputFPS    float64
	sourceStream string
	queueDepth   int

	proc *Processor
	box  *mailbox.Mailbox

	// GStreamer pipeline elements
	elements *gstpipe.PipelineElements

	mu sync.RWMutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	// Statistics (atomic)
	framesIn      uint64
	framesOut     uint64
	framesDropped uint64
	bytesRead     uint64

	// Guarded by mu
	started     time.Time
	lastFrameAt time.Time
	width       int
	height      int

	counters       gstpipe.ErrorCounters
	reconnectState *gstpipe.ReconnectState
	reconnectCfg   gstpipe.ReconnectConfig

	running atomic.Bool
}

// NewFilter creates a filter with fail-fast validation:
//   - Source and Sink fragments must not be empty
//   - Processing must be a valid Config
//   - QueueDepth and OutputFPS must not be negative
//   - GStreamer and the app elements must be installed
func NewFilter(cfg FilterConfig) (*Filter, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("filter: source fragment is required")
	}
	if cfg.Sink == "" {
		return nil, fmt.Errorf("filter: sink fragment is required")
	}
	if cfg.OutputFPS < 0 {
		return nil, fmt.Errorf("filter: invalid output FPS %.2f (must be >= 0)", cfg.OutputFPS)
	}
	if cfg.QueueDepth < 0 {
		return nil, fmt.Errorf("filter: invalid queue depth %d (must be >= 0)", cfg.QueueDepth)
	}

	proc, err := NewProcessor(cfg.Processing)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	if err := gstpipe.CheckAvailable(); err != nil {
		return nil, fmt.Errorf("filter: GStreamer not available: %w", err)
	}

	reconnectCfg := gstpipe.DefaultReconnectConfig()
	if cfg.MaxReconnectAttempts > 0 {
		reconnectCfg.MaxRetries = cfg.MaxReconnectAttempts
	}
	if cfg.ReconnectInitialDelay > 0 {
		reconnectCfg.RetryDelay = cfg.ReconnectInitialDelay
	}
	if cfg.ReconnectMaxDelay > 0 {
		reconnectCfg.MaxRetryDelay = cfg.ReconnectMaxDelay
	}

	queueDepth := cfg.QueueDepth
	if queueDepth == 0 {
		queueDepth = defaultQueueDepth
	}

	f := &Filter{
		source:         cfg.Source,
		sink:           cfg.Sink,
		outputFPS:      cfg.OutputFPS,
		sourceStream:   cfg.SourceStream,
		queueDepth:     queueDepth,
		proc:           proc,
		box:            mailbox.New(),
		reconnectCfg:   reconnectCfg,
		reconnectState: gstpipe.NewReconnectState(),
	}

	logrus.WithFields(logrus.Fields{
		"source":        cfg.Source,
		"sink":          cfg.Sink,
		"output_fps":    cfg.OutputFPS,
		"source_stream": cfg.SourceStream,
		"queue_depth":   queueDepth,
	}).Info("filter: created")

	return f, nil
}

// Start builds the pipeline, sets it PLAYING and returns immediately.
// Frames flow once caps are negotiated.
func (f *Filter) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		return fmt.Errorf("filter: already started")
	}

	elements, err := gstpipe.CreatePipeline(gstpipe.PipelineConfig{
		Source:    f.source,
		Sink:      f.sink,
		OutputFPS: f.outputFPS,
	})
	if err != nil {
		return fmt.Errorf("filter: failed to create pipeline: %w", err)
	}

	f.ctx, f.cancel = context.WithCancel(ctx)
	f.started = time.Now()
	f.elements = elements
	f.done = make(chan struct{})

	if err := f.box.Start(f.ctx); err != nil {
		logrus.WithError(err).Warn("filter: mailbox already running")
	}

	frames := make(chan gstpipe.Frame, f.queueDepth)
	callbackCtx := &gstpipe.CallbackContext{
		FrameChan:     frames,
		FrameCounter:  &f.framesIn,
		BytesRead:     &f.bytesRead,
		FramesDropped: &f.framesDropped,
		SourceStream:  f.sourceStream,
	}
	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return gstpipe.OnNewSample(sink, callbackCtx)
		},
	})

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		f.cancel()
		f.box.Stop()
		_ = gstpipe.DestroyPipeline(elements)
		f.cancel, f.ctx, f.elements = nil, nil, nil
		return fmt.Errorf("filter: failed to start pipeline: %w", err)
	}
	f.running.Store(true)

	// Samples queue in frames until this goroutine runs.
	pusher := gstpipe.NewPusher(elements.AppSrc, f.outputFPS)
	localCtx := f.ctx
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-localCtx.Done():
				return
			case frame := <-frames:
				f.handleFrame(frame, pusher)
			}
		}
	}()

	f.wg.Add(1)
	go f.runPipeline(localCtx, elements, f.done)

	logrus.WithFields(logrus.Fields{
		"source_stream": f.sourceStream,
		"launch":        gstpipe.BuildLaunch(gstpipe.PipelineConfig{Source: f.source, Sink: f.sink}),
	}).Info("filter: started")

	return nil
}

// handleFrame runs one captured frame through the processor and hands the
// result to the appsrc and the mailbox.
func (f *Filter) handleFrame(frame gstpipe.Frame, pusher *gstpipe.Pusher) {
	in, err := raster.Wrap(frame.Data, frame.Width, frame.Height)
	if err != nil {
		atomic.AddUint64(&f.framesDropped, 1)
		logrus.WithError(err).WithField("seq", frame.Seq).Warn("filter: malformed frame dropped")
		return
	}

	f.mu.Lock()
	if f.width != frame.Width || f.height != frame.Height {
		logrus.WithFields(logrus.Fields{
			"from": fmt.Sprintf("%dx%d", f.width, f.height),
			"to":   fmt.Sprintf("%dx%d", frame.Width, frame.Height),
		}).Info("filter: input size changed")
		f.width, f.height = frame.Width, frame.Height
	}
	f.mu.Unlock()

	res, err := f.proc.Run(in)
	if err != nil {
		atomic.AddUint64(&f.framesDropped, 1)
		logrus.WithError(err).WithField("seq", frame.Seq).Error("filter: frame processing failed")
		return
	}

	if ret := pusher.Push(res.Output.Pix, res.Output.Width, res.Output.Height); ret != gst.FlowOK {
		// Flushing during shutdown or restart.
		logrus.WithFields(logrus.Fields{
			"seq":  frame.Seq,
			"flow": ret,
		}).Debug("filter: appsrc refused buffer")
	}
	atomic.AddUint64(&f.framesOut, 1)

	f.mu.Lock()
	f.lastFrameAt = time.Now()
	f.mu.Unlock()

	f.box.Publish(&mailbox.Frame{
		CaptureSeq:   frame.Seq,
		Timestamp:    frame.Timestamp,
		Image:        res.Output,
		Leaves:       res.Tree.LeafCount(),
		Tree:         res.Tree,
		Style:        res.Config.style(),
		Latency:      res.Elapsed,
		SourceStream: frame.SourceStream,
		TraceID:      frame.TraceID,
	})
}

// runPipeline watches the bus and restarts the pipeline with exponential
// backoff on errors. End of stream, or giving up, closes done.
func (f *Filter) runPipeline(ctx context.Context, elements *gstpipe.PipelineElements, done chan struct{}) {
	defer f.wg.Done()
	defer close(done)
	defer f.running.Store(false)

	metrics := gstpipe.MonitorMetrics{
		SourceStream: f.sourceStream,
		FrameCount:   &f.framesIn,
		StartedAt:    f.started,
	}

	connectFn := func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			if err := gstpipe.RestartPipeline(elements); err != nil {
				return err
			}
		}
		err := gstpipe.MonitorPipelineBus(ctx, elements.Pipeline, &f.counters, f.reconnectState, metrics)
		if errors.Is(err, gstpipe.ErrEndOfStream) {
			return nil
		}
		return err
	}

	err := gstpipe.RunWithReconnect(ctx, connectFn, f.reconnectCfg, f.reconnectState)
	if err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithFields(logrus.Fields{
			"error":           err,
			"source_stream":   f.sourceStream,
			"uptime":          time.Since(f.started),
			"frames_captured": atomic.LoadUint64(&f.framesIn),
			"reconnects":      atomic.LoadUint32(f.reconnectState.Reconnects),
		}).Error("filter: pipeline stopped after reconnection failure")
	}
}

// Done returns a channel closed when the pipeline ends on its own (end of
// stream or reconnection failure) or after Stop. It is nil before Start.
func (f *Filter) Done() <-chan struct{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.done
}

// Stop cancels processing, waits up to 3 seconds for goroutines, releases
// the pipeline and closes every subscription. Idempotent.
func (f *Filter) Stop() error {
	f.mu.Lock()
	if f.cancel == nil {
		f.mu.Unlock()
		logrus.Debug("filter: not started, nothing to stop")
		return nil
	}
	cancel := f.cancel
	elements := f.elements
	f.mu.Unlock()

	logrus.Info("filter: stopping")
	cancel()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
		logrus.Debug("filter: goroutines stopped cleanly")
	case <-time.After(3 * time.Second):
		logrus.Warn("filter: stop timeout exceeded, some goroutines may still be running")
		stopErr = fmt.Errorf("filter: stop timeout exceeded")
	}

	if err := gstpipe.DestroyPipeline(elements); err != nil {
		logrus.WithError(err).Error("filter: failed to destroy pipeline")
	}
	f.box.Stop()
	f.running.Store(false)

	f.mu.Lock()
	logrus.WithFields(logrus.Fields{
		"frames_in":  atomic.LoadUint64(&f.framesIn),
		"frames_out": atomic.LoadUint64(&f.framesOut),
		"dropped":    atomic.LoadUint64(&f.framesDropped),
		"reconnects": atomic.LoadUint32(f.reconnectState.Reconnects),
		"uptime":     time.Since(f.started),
	}).Info("filter: stopped")

	// Reset for a later Start.
	f.cancel = nil
	f.ctx = nil
	f.elements = nil
	f.mu.Unlock()

	return stopErr
}

// Stats returns current filter statistics. Thread-safe.
func (f *Filter) Stats() FilterStats {
	f.mu.RLock()
	started, lastFrameAt := f.started, f.lastFrameAt
	width, height := f.width, f.height
	f.mu.RUnlock()

	framesIn := atomic.LoadUint64(&f.framesIn)
	framesOut := atomic.LoadUint64(&f.framesOut)
	framesDropped := atomic.LoadUint64(&f.framesDropped)

	var fpsReal float64
	if !started.IsZero() {
		if uptime := time.Since(started).Seconds(); uptime > 0 {
			fpsReal = float64(framesOut) / uptime
		}
	}

	// Every dropped frame was first counted as captured.
	var dropRate float64
	if framesIn > 0 {
		dropRate = float64(framesDropped) / float64(framesIn) * 100.0
	}

	var latencyMS int64
	if !lastFrameAt.IsZero() {
		latencyMS = time.Since(lastFrameAt).Milliseconds()
	}

	var resolution string
	if width > 0 && height > 0 {
		resolution = fmt.Sprintf("%dx%d", width, height)
	}

	errs := f.counters.Load()
	return FilterStats{
		FramesIn:        framesIn,
		FramesOut:       framesOut,
		FramesDropped:   framesDropped,
		DropRate:        dropRate,
		FPSReal:         fpsReal,
		LatencyMS:       latencyMS,
		Resolution:      resolution,
		SourceStream:    f.sourceStream,
		Reconnects:      atomic.LoadUint32(f.reconnectState.Reconnects),
		BytesRead:       atomic.LoadUint64(&f.bytesRead),
		IsRunning:       f.running.Load(),
		ErrorsNetwork:   errs.Network,
		ErrorsFormat:    errs.Format,
		ErrorsResource:  errs.Resource,
		ErrorsUnknown:   errs.Unknown,
		Processor:       f.proc.Stats(),
		SubscriberDrops: f.box.Stats().TotalDrops(),
	}
}

// Config returns the active processing configuration.
func (f *Filter) Config() Config {
	return f.proc.Config()
}

// SetConfig validates cfg, against the negotiated frame size when one is
// known, and makes it active from the next frame on.
func (f *Filter) SetConfig(cfg Config) error {
	f.mu.RLock()
	width, height := f.width, f.height
	f.mu.RUnlock()

	if width > 0 && height > 0 {
		if err := cfg.ValidateFor(width, height); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	}
	if err := f.proc.SetConfig(cfg); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	return nil
}

// Subscribe registers a consumer of processed frames. See mailbox.Subscribe.
func (f *Filter) Subscribe(id string) func() *StreamFrame {
	return f.box.Subscribe(id)
}

// Unsubscribe removes a consumer. Idempotent.
func (f *Filter) Unsubscribe(id string) {
	f.box.Unsubscribe(id)
}

// Warmup observes processed frames for duration and reports whether the
// output rate is stable.
//
// Example:
//
//	filter, _ := rectanglify.NewFilter(cfg)
//	_ = filter.Start(ctx)
//
//	stats, err := filter.Warmup(ctx, 5*time.Second)
//	if err != nil {
//	    log.Fatal("warmup failed:", err)
//	}
//	log.Printf("output stable: %v, FPS: %.2f", stats.IsStable, stats.FPSMean)
func (f *Filter) Warmup(ctx context.Context, duration time.Duration) (*WarmupStats, error) {
	if !f.running.Load() {
		return nil, fmt.Errorf("filter: warmup: %w", ErrNotRunning)
	}

	logrus.WithField("duration", duration).Info("filter: starting warmup")

	id := "warmup-" + uuid.New().String()
	next := f.box.Subscribe(id)

	arrivals := make(chan time.Time, 64)
	go func() {
		defer close(arrivals)
		for {
			frame := next()
			if frame == nil {
				return
			}
			select {
			case arrivals <- time.Now():
			default:
			}
		}
	}()

	startTime := time.Now()
	frameTimes := make([]time.Time, 0, 100)

	warmupCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

collect:
	for {
		select {
		case <-warmupCtx.Done():
			break collect
		case t, ok := <-arrivals:
			if !ok {
				break collect
			}
			frameTimes = append(frameTimes, t)
		}
	}

	f.box.Unsubscribe(id)
	for range arrivals {
		// drain until the reader sees the closed subscription
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("filter: warmup cancelled: %w", err)
	}

	elapsed := time.Since(startTime)
	if len(frameTimes) < 2 {
		return nil, fmt.Errorf(
			"filter: not enough frames during warmup (got %d, need at least 2)",
			len(frameTimes),
		)
	}

	stats := CalculateFPSStats(frameTimes, elapsed)

	logrus.WithFields(logrus.Fields{
		"frames":     stats.FramesReceived,
		"duration":   stats.Duration,
		"fps_mean":   fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev": fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range":  fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"stable":     stats.IsStable,
	}).Info("filter: warmup complete")

	if !stats.IsStable {
		return stats, fmt.Errorf(
			"filter: warmup failed - output FPS unstable (mean=%.2f Hz, stddev=%.2f, threshold=15%%)",
			stats.FPSMean, stats.FPSStdDev,
		)
	}
	return stats, nil
}
