package gstpipe

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

const (
	// SinkName is the name of the appsink that hands input frames to Go.
	SinkName = "rectanglify_sink"
	// SrcName is the name of the appsrc that takes painted frames back.
	SrcName = "rectanglify_src"
)

// PipelineConfig contains the launch fragments around the filter.
type PipelineConfig struct {
	// Source produces raw or decodable video, e.g. "videotestsrc".
	Source string
	// Sink consumes raw video, e.g. "autovideosink".
	Sink string
	// OutputFPS is advertised on the appsrc caps; 0 means variable.
	OutputFPS float64
}

// PipelineElements holds references needed while the pipeline runs and for
// cleanup.
type PipelineElements struct {
	Pipeline *gst.Pipeline
	AppSink  *app.Sink
	AppSrc   *app.Source
}

// BuildLaunch returns the gst-launch description of the pipeline:
//
//	<source> ! videoconvert ! video/x-raw,format=RGB ! appsink
//	appsrc ! videoconvert ! <sink>
//
// The two chains are independent; Go code moves buffers between them.
func BuildLaunch(cfg PipelineConfig) string {
	capture := fmt.Sprintf(
		"%s ! videoconvert ! video/x-raw,format=RGB ! appsink name=%s sync=false max-buffers=2 drop=true emit-signals=false",
		strings.TrimSpace(cfg.Source), SinkName,
	)
	render := fmt.Sprintf(
		"appsrc name=%s format=time is-live=true do-timestamp=true block=false ! videoconvert ! %s",
		SrcName, strings.TrimSpace(cfg.Sink),
	)
	return capture + " " + render
}

// CreatePipeline parses the launch description and looks up the app
// elements. The pipeline is returned in the NULL state.
func CreatePipeline(cfg PipelineConfig) (*PipelineElements, error) {
	gst.Init(nil)

	launch := BuildLaunch(cfg)
	logrus.WithFields(logrus.Fields{
		"function": "CreatePipeline",
		"launch":   launch,
	}).Debug("gstpipe: building pipeline")

	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipeline: %w", err)
	}

	sinkElem, err := pipeline.GetElementByName(SinkName)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", SinkName, err)
	}
	srcElem, err := pipeline.GetElementByName(SrcName)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", SrcName, err)
	}

	return &PipelineElements{
		Pipeline: pipeline,
		AppSink:  app.SinkFromElement(sinkElem),
		AppSrc:   app.SrcFromElement(srcElem),
	}, nil
}

// RestartPipeline cycles the pipeline through NULL back to PLAYING.
func RestartPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to set pipeline to PLAYING: %w", err)
	}
	return nil
}

// DestroyPipeline sends end-of-stream downstream and releases the pipeline.
// Safe to call with nil.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if elements.AppSrc != nil {
		elements.AppSrc.EndStream()
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// CheckAvailable verifies that GStreamer and the elements the pipeline
// needs are installed.
func CheckAvailable() error {
	gst.Init(nil)
	for _, name := range []string{"appsrc", "appsink", "videoconvert"} {
		elem, err := gst.NewElement(name)
		if err != nil {
			return fmt.Errorf("element %s not available: %w", name, err)
		}
		elem.SetState(gst.StateNull)
	}
	return nil
}

// BuildCaps returns raw RGB caps for the given size.
//
// Fractional rates are written as 1/N (0.5 fps is 1/2); fps <= 0 gives a
// variable framerate of 0/1.
func BuildCaps(width, height int, fps float64) string {
	numerator, denominator := 0, 1
	switch {
	case fps <= 0:
	case fps < 1.0:
		numerator = 1
		denominator = int(1.0 / fps)
	default:
		numerator = int(fps)
	}
	return fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d",
		width, height, numerator, denominator,
	)
}
