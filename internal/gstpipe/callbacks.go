// Package gstpipe hosts the filter inside a GStreamer pipeline: it builds
// the appsink/appsrc pipeline, pulls RGB frames out of it, pushes painted
// frames back in, and watches the bus for errors.
package gstpipe

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Frame is one captured RGB frame.
type Frame struct {
	Seq          uint64
	Timestamp    time.Time
	Width        int
	Height       int
	Data         []byte
	SourceStream string
	TraceID      string
}

// CallbackContext holds state needed by the appsink callback.
type CallbackContext struct {
	FrameChan     chan<- Frame
	FrameCounter  *uint64 // atomic; also the sequence source
	BytesRead     *uint64 // atomic
	FramesDropped *uint64 // atomic; channel full
	SourceStream  string
}

// OnNewSample pulls one sample from the appsink, copies its pixels and
// sends it on ctx.FrameChan without blocking. A full channel drops the
// frame and counts it.
//
// A sample that cannot be read is skipped; one bad frame must not end the
// stream.
func OnNewSample(sink *app.Sink, ctx *CallbackContext) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		logrus.Warn("gstpipe: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	width, height, err := sampleSize(sample)
	if err != nil {
		logrus.WithError(err).Warn("gstpipe: sample without usable caps, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		logrus.Warn("gstpipe: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		logrus.Warn("gstpipe: empty buffer received")
		return gst.FlowOK
	}

	// GStreamer reuses the buffer after we return.
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	frameData, err = Unpad(frameData, width, height)
	if err != nil {
		logrus.WithError(err).Warn("gstpipe: unexpected buffer layout, skipping frame")
		return gst.FlowOK
	}

	seq := atomic.AddUint64(ctx.FrameCounter, 1)
	atomic.AddUint64(ctx.BytesRead, uint64(len(frameData)))

	frame := Frame{
		Seq:          seq,
		Timestamp:    time.Now(),
		Width:        width,
		Height:       height,
		Data:         frameData,
		SourceStream: ctx.SourceStream,
		TraceID:      uuid.New().String(),
	}

	select {
	case ctx.FrameChan <- frame:
	default:
		atomic.AddUint64(ctx.FramesDropped, 1)
		logrus.WithFields(logrus.Fields{
			"seq":      frame.Seq,
			"trace_id": frame.TraceID,
		}).Debug("gstpipe: dropping frame, processing busy")
	}

	return gst.FlowOK
}

// sampleSize reads width and height from the sample caps.
func sampleSize(sample *gst.Sample) (int, int, error) {
	caps := sample.GetCaps()
	if caps == nil {
		return 0, 0, fmt.Errorf("sample has no caps")
	}
	st := caps.GetStructureAt(0)
	if st == nil {
		return 0, 0, fmt.Errorf("caps have no structure")
	}
	width, err := intField(st, "width")
	if err != nil {
		return 0, 0, err
	}
	height, err := intField(st, "height")
	if err != nil {
		return 0, 0, err
	}
	return width, height, nil
}

func intField(st *gst.Structure, name string) (int, error) {
	v, err := st.GetValue(name)
	if err != nil {
		return 0, fmt.Errorf("caps field %s: %w", name, err)
	}
	n, ok := v.(int)
	if !ok || n <= 0 {
		return 0, fmt.Errorf("caps field %s: unexpected value %v", name, v)
	}
	return n, nil
}

// Pusher feeds painted frames into the appsrc, updating its caps whenever
// the frame size changes.
type Pusher struct {
	src  *app.Source
	fps  float64
	caps string
}

// NewPusher creates a pusher for src advertising fps on its caps.
func NewPusher(src *app.Source, fps float64) *Pusher {
	return &Pusher{src: src, fps: fps}
}

// Push copies pix into a new buffer, padding rows to the default stride, and
// pushes it downstream.
func (p *Pusher) Push(pix []byte, width, height int) gst.FlowReturn {
	if caps := BuildCaps(width, height, p.fps); caps != p.caps {
		p.src.SetCaps(gst.NewCapsFromString(caps))
		p.caps = caps
		logrus.WithField("caps", caps).Info("gstpipe: output caps set")
	}
	return p.src.PushBuffer(gst.NewBufferFromBytes(Pad(pix, width, height)))
}
