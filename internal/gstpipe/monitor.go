package gstpipe

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
)

// ErrEndOfStream is returned by MonitorPipelineBus when the source is
// exhausted.
var ErrEndOfStream = errors.New("end of stream")

// ErrorCounters holds atomic counters per error category.
type ErrorCounters struct {
	Network  uint64
	Format   uint64
	Resource uint64
	Unknown  uint64
}

// Add increments the counter for category.
func (c *ErrorCounters) Add(category ErrorCategory) {
	switch category {
	case ErrCategoryNetwork:
		atomic.AddUint64(&c.Network, 1)
	case ErrCategoryFormat:
		atomic.AddUint64(&c.Format, 1)
	case ErrCategoryResource:
		atomic.AddUint64(&c.Resource, 1)
	default:
		atomic.AddUint64(&c.Unknown, 1)
	}
}

// Load returns a consistent-enough copy of the counters.
func (c *ErrorCounters) Load() ErrorCounters {
	return ErrorCounters{
		Network:  atomic.LoadUint64(&c.Network),
		Format:   atomic.LoadUint64(&c.Format),
		Resource: atomic.LoadUint64(&c.Resource),
		Unknown:  atomic.LoadUint64(&c.Unknown),
	}
}

// MonitorMetrics carries fields attached to bus log lines.
type MonitorMetrics struct {
	SourceStream string
	FrameCount   *uint64
	StartedAt    time.Time
}

// MonitorPipelineBus polls the bus until the context ends (returns nil),
// the stream ends (returns ErrEndOfStream) or an error arrives (returns an
// error so the caller can restart). Reaching PLAYING resets the reconnect state.
func MonitorPipelineBus(
	ctx context.Context,
	pipeline *gst.Pipeline,
	counters *ErrorCounters,
	state *ReconnectState,
	metrics MonitorMetrics,
) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()
	log := logrus.WithField("source_stream", metrics.SourceStream)

	for {
		select {
		case <-ctx.Done():
			log.Debug("gstpipe: context cancelled, stopping bus monitor")
			return nil
		default:
		}

		// Short timeout keeps shutdown responsive.
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			log.WithFields(logrus.Fields{
				"uptime":           time.Since(metrics.StartedAt),
				"frames_processed": atomic.LoadUint64(metrics.FrameCount),
			}).Info("gstpipe: end of stream received")
			return ErrEndOfStream

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			counters.Add(category)

			log.WithFields(logrus.Fields{
				"error":            gerr.Error(),
				"debug":            gerr.DebugString(),
				"category":         category.String(),
				"uptime":           time.Since(metrics.StartedAt),
				"frames_processed": atomic.LoadUint64(metrics.FrameCount),
				"reconnects":       atomic.LoadUint32(state.Reconnects),
			}).Error("gstpipe: pipeline error")
			return fmt.Errorf("pipeline error [%s]: %s", category.String(), gerr.Error())

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, current := msg.ParseStateChanged()
				log.WithFields(logrus.Fields{
					"from": old,
					"to":   current,
				}).Debug("gstpipe: pipeline state changed")

				if current == gst.StatePlaying {
					state.Reset()
				}
			}
		}
	}
}
