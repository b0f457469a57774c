package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/sirupsen/logrus"

	"github.com/Liamolucko/rectanglify"
	"github.com/Liamolucko/rectanglify/internal/config"
	"github.com/Liamolucko/rectanglify/internal/control"
	"github.com/Liamolucko/rectanglify/internal/export"
)

func runStream(args []string) error {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	pf := addProcessingFlags(fs)
	configPath := fs.String("config", "", "YAML configuration file (overrides the flags below)")
	instanceID := fs.String("id", "default", "Instance identifier, used in MQTT topics")
	source := fs.String("source", "videotestsrc is-live=true", "gst-launch fragment producing video")
	sink := fs.String("sink", "autovideosink", "gst-launch fragment consuming video")
	outputFPS := fs.Float64("fps", 0, "Output caps frame rate (0 = variable)")
	broker := fs.String("mqtt", "", "MQTT broker host:port (empty disables the control plane)")
	outputDir := fs.String("output", "", "Directory to save processed frames (optional)")
	outputFormat := fs.String("format", "png", "Saved frame format: png, jpeg, svg")
	everyN := fs.Int("every-n", 1, "Save one frame in N")
	warmup := fs.Int("warmup", 0, "Seconds of output stability measurement before reporting (0 = skip)")
	statsAddr := fs.String("statsview", "", "Serve runtime charts at this address, e.g. localhost:18066")
	fs.Parse(args)
	pf.setupLogging()

	var cfg *config.Config
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	} else {
		processing, err := pf.config()
		if err != nil {
			return err
		}
		cfg = config.Default()
		cfg.InstanceID = *instanceID
		cfg.Processing = config.FromRectanglify(processing)
		cfg.Pipeline.Source = *source
		cfg.Pipeline.Sink = *sink
		cfg.Pipeline.OutputFPS = *outputFPS
		cfg.Pipeline.WarmupDurationS = *warmup
		cfg.MQTT.Broker = *broker
		cfg.Output = config.OutputConfig{Dir: *outputDir, Format: *outputFormat, EveryN: *everyN}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if *statsAddr != "" {
		launchStatsView(*statsAddr)
	}

	fc, err := cfg.FilterConfig()
	if err != nil {
		return err
	}
	filter, err := rectanglify.NewFilter(fc)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logrus.WithFields(logrus.Fields{
		"instance_id": cfg.InstanceID,
		"source":      cfg.Pipeline.Source,
		"sink":        cfg.Pipeline.Sink,
	}).Info("rectanglify: starting stream")
	if err := filter.Start(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	if cfg.Output.Dir != "" {
		saver, err := export.NewFrameSaver(cfg.Output.Dir, cfg.Output.Format, cfg.Output.EveryN)
		if err != nil {
			filter.Stop()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			saveFrames(filter, saver)
		}()
	}

	if cfg.MQTT.Broker != "" {
		stopControl, err := startControl(ctx, cfg, fc.Processing, filter)
		if err != nil {
			filter.Stop()
			return err
		}
		defer stopControl()
	}

	if cfg.Pipeline.WarmupDurationS > 0 {
		ws, err := filter.Warmup(ctx, time.Duration(cfg.Pipeline.WarmupDurationS)*time.Second)
		if ws != nil {
			logrus.WithFields(logrus.Fields{
				"frames":   ws.FramesReceived,
				"fps_mean": fmt.Sprintf("%.2f", ws.FPSMean),
				"fps_std":  fmt.Sprintf("%.2f", ws.FPSStdDev),
				"stable":   ws.IsStable,
			}).Info("rectanglify: warmup complete")
		}
		if err != nil {
			logrus.WithError(err).Warn("rectanglify: warmup did not confirm a stable output")
		}
	}

	statsTicker := time.NewTicker(time.Duration(cfg.MQTT.StatsIntervalS) * time.Second)
	defer statsTicker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			logrus.Info("rectanglify: received shutdown signal")
			break loop
		case <-filter.Done():
			logrus.Info("rectanglify: pipeline finished")
			break loop
		case <-statsTicker.C:
			logStats(filter.Stats())
		}
	}

	if err := filter.Stop(); err != nil {
		logrus.WithError(err).Warn("rectanglify: error stopping filter")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Duration(cfg.ShutdownTimeoutS) * time.Second):
		logrus.Warn("rectanglify: shutdown timeout, frame saver still running")
	}

	logStats(filter.Stats())
	return nil
}

// launchStatsView serves runtime charts in the background.
func launchStatsView(addr string) {
	viewer.SetConfiguration(viewer.WithAddr(addr))
	mgr := statsview.New()
	go mgr.Start()
	logrus.WithField("url", "http://"+addr+"/debug/statsview").Info("rectanglify: statsview available")
}

// saveFrames writes processed frames until the filter stops.
func saveFrames(filter *rectanglify.Filter, saver *export.FrameSaver) {
	const id = "frame-saver"
	next := filter.Subscribe(id)
	defer filter.Unsubscribe(id)

	for {
		frame := next()
		if frame == nil {
			logrus.WithField("saved", saver.Saved()).Info("rectanglify: frame saver stopped")
			return
		}
		if _, err := saver.Save(frame.Image, frame.Tree, frame.Style); err != nil {
			logrus.WithError(err).WithField("seq", frame.Seq).Error("rectanglify: failed to save frame")
		}
	}
}

// startControl connects to the broker and serves the control plane. The
// returned function disconnects.
func startControl(ctx context.Context, cfg *config.Config, defaults rectanglify.Config, filter *rectanglify.Filter) (func(), error) {
	client, err := control.Connect(cfg.MQTT.Broker, "rectanglify-"+cfg.InstanceID)
	if err != nil {
		return nil, err
	}

	topics := control.Topics{
		Control:  cfg.MQTT.ControlTopic(cfg.InstanceID),
		Response: cfg.MQTT.ResponseTopic(cfg.InstanceID),
		Stats:    cfg.MQTT.StatsTopic(cfg.InstanceID),
		QoS:      cfg.MQTT.QoS,
	}
	handler := control.NewHandler(client, topics, defaults, control.CommandCallbacks{
		OnGetStatus: func() map[string]interface{} { return statusData(filter.Stats()) },
		OnGetConfig: filter.Config,
		OnSetConfig: filter.SetConfig,
	})
	if err := handler.Start(ctx); err != nil {
		client.Disconnect(250)
		return nil, err
	}

	publisher := control.NewStatsPublisher(client, topics.Stats, topics.QoS,
		time.Duration(cfg.MQTT.StatsIntervalS)*time.Second,
		func() interface{} { return statusData(filter.Stats()) })
	go publisher.Run(ctx)

	return func() {
		if err := handler.Stop(); err != nil {
			logrus.WithError(err).Warn("rectanglify: error stopping control handler")
		}
		client.Disconnect(250)
	}, nil
}

func statusData(s rectanglify.FilterStats) map[string]interface{} {
	return map[string]interface{}{
		"is_running":       s.IsRunning,
		"source_stream":    s.SourceStream,
		"resolution":       s.Resolution,
		"frames_in":        s.FramesIn,
		"frames_out":       s.FramesOut,
		"frames_dropped":   s.FramesDropped,
		"drop_rate":        s.DropRate,
		"fps_real":         s.FPSReal,
		"latency_ms":       s.LatencyMS,
		"reconnects":       s.Reconnects,
		"bytes_read":       s.BytesRead,
		"subscriber_drops": s.SubscriberDrops,
		"last_leaves":      s.Processor.LastLeaves,
		"last_depth":       s.Processor.LastDepth,
		"latency_mean_ms":  s.Processor.LatencyMeanMS,
		"latency_p95_ms":   s.Processor.LatencyP95MS,
		"config_version":   s.Processor.ConfigVersion,
		"errors": map[string]uint64{
			"network":  s.ErrorsNetwork,
			"format":   s.ErrorsFormat,
			"resource": s.ErrorsResource,
			"unknown":  s.ErrorsUnknown,
		},
	}
}

func logStats(s rectanglify.FilterStats) {
	logrus.WithFields(logrus.Fields{
		"frames_in":      s.FramesIn,
		"frames_out":     s.FramesOut,
		"frames_dropped": s.FramesDropped,
		"drop_rate":      fmt.Sprintf("%.1f%%", s.DropRate),
		"fps":            fmt.Sprintf("%.2f", s.FPSReal),
		"resolution":     s.Resolution,
		"last_leaves":    s.Processor.LastLeaves,
		"latency_p95":    fmt.Sprintf("%.1fms", s.Processor.LatencyP95MS),
		"reconnects":     s.Reconnects,
	}).Info("rectanglify: stats")
}
