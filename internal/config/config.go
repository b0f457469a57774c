package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Liamolucko/rectanglify"
)

// Config represents the complete rectanglify stream configuration
type Config struct {
	InstanceID       string           `yaml:"instance_id"`
	ShutdownTimeoutS int              `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	Processing       ProcessingConfig `yaml:"processing"`
	Pipeline         PipelineConfig   `yaml:"pipeline"`
	MQTT             MQTTConfig       `yaml:"mqtt"`
	Output           OutputConfig     `yaml:"output"`
}

// ProcessingConfig mirrors rectanglify.Config with a hex border color
type ProcessingConfig struct {
	VarianceThreshold float64 `yaml:"variance_threshold"`
	MinRegionSize     int     `yaml:"min_region_size"`
	MaxDepth          int     `yaml:"max_depth"`
	DrawBorders       bool    `yaml:"draw_borders"`
	BorderColor       string  `yaml:"border_color"` // #rrggbb or #rgb
	BorderThickness   int     `yaml:"border_thickness"`
	Parallelism       int     `yaml:"parallelism"`
}

// PipelineConfig contains GStreamer settings
type PipelineConfig struct {
	Source                 string  `yaml:"source"` // gst-launch fragment, e.g. "v4l2src"
	Sink                   string  `yaml:"sink"`   // gst-launch fragment, e.g. "autovideosink"
	OutputFPS              float64 `yaml:"output_fps"`
	QueueDepth             int     `yaml:"queue_depth"`
	MaxReconnectAttempts   int     `yaml:"max_reconnect_attempts"`
	ReconnectInitialDelayS float64 `yaml:"reconnect_initial_delay_s"`
	ReconnectMaxDelayS     float64 `yaml:"reconnect_max_delay_s"`
	WarmupDurationS        int     `yaml:"warmup_duration_s"` // 0 skips warmup
}

// MQTTConfig contains MQTT broker settings. An empty broker disables the
// control plane.
type MQTTConfig struct {
	Broker         string `yaml:"broker"` // host:port
	TopicPrefix    string `yaml:"topic_prefix"`
	QoS            byte   `yaml:"qos"`
	StatsIntervalS int    `yaml:"stats_interval_s"`
}

// OutputConfig controls saving processed frames. An empty dir disables it.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`  // png, jpeg, svg
	EveryN int    `yaml:"every_n"` // save one frame in N
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		ShutdownTimeoutS: 5,
		Processing:       FromRectanglify(rectanglify.DefaultConfig()),
		Pipeline: PipelineConfig{
			QueueDepth:             2,
			MaxReconnectAttempts:   5,
			ReconnectInitialDelayS: 1,
			ReconnectMaxDelayS:     30,
		},
		MQTT: MQTTConfig{
			TopicPrefix:    "rectanglify",
			QoS:            1,
			StatsIntervalS: 10,
		},
		Output: OutputConfig{
			Format: "png",
			EveryN: 1,
		},
	}
}

// Load reads and parses a YAML configuration file. Keys missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromRectanglify converts a processing config to its file form.
func FromRectanglify(c rectanglify.Config) ProcessingConfig {
	return ProcessingConfig{
		VarianceThreshold: c.VarianceThreshold,
		MinRegionSize:     c.MinRegionSize,
		MaxDepth:          c.MaxDepth,
		DrawBorders:       c.DrawBorders,
		BorderColor:       c.BorderColor.String(),
		BorderThickness:   c.BorderThickness,
		Parallelism:       c.Parallelism,
	}
}

// Rectanglify converts the file form to a validated processing config.
func (p ProcessingConfig) Rectanglify() (rectanglify.Config, error) {
	color, err := rectanglify.ParseColor(p.BorderColor)
	if err != nil {
		return rectanglify.Config{}, err
	}
	cfg := rectanglify.Config{
		VarianceThreshold: p.VarianceThreshold,
		MinRegionSize:     p.MinRegionSize,
		MaxDepth:          p.MaxDepth,
		DrawBorders:       p.DrawBorders,
		BorderColor:       color,
		BorderThickness:   p.BorderThickness,
		Parallelism:       p.Parallelism,
	}
	if err := cfg.Validate(); err != nil {
		return rectanglify.Config{}, err
	}
	return cfg, nil
}

// ApplyPatch overlays a partial update (as decoded from JSON) on cur. Keys
// use the YAML field names; unknown keys and mistyped values are errors.
func ApplyPatch(cur rectanglify.Config, patch map[string]interface{}) (rectanglify.Config, error) {
	if len(patch) == 0 {
		return cur, nil
	}
	data, err := yaml.Marshal(patch)
	if err != nil {
		return cur, fmt.Errorf("config: encode patch: %w", err)
	}

	p := FromRectanglify(cur)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return cur, fmt.Errorf("config: %w: %w", err, rectanglify.ErrInvalidConfig)
	}
	next, err := p.Rectanglify()
	if err != nil {
		return cur, err
	}
	return next, nil
}

// FilterConfig builds the filter configuration.
func (c *Config) FilterConfig() (rectanglify.FilterConfig, error) {
	processing, err := c.Processing.Rectanglify()
	if err != nil {
		return rectanglify.FilterConfig{}, err
	}
	return rectanglify.FilterConfig{
		Source:                c.Pipeline.Source,
		Sink:                  c.Pipeline.Sink,
		Processing:            processing,
		OutputFPS:             c.Pipeline.OutputFPS,
		SourceStream:          c.InstanceID,
		QueueDepth:            c.Pipeline.QueueDepth,
		MaxReconnectAttempts:  c.Pipeline.MaxReconnectAttempts,
		ReconnectInitialDelay: seconds(c.Pipeline.ReconnectInitialDelayS),
		ReconnectMaxDelay:     seconds(c.Pipeline.ReconnectMaxDelayS),
	}, nil
}

// ControlTopic is where commands arrive.
func (m MQTTConfig) ControlTopic(instanceID string) string {
	return fmt.Sprintf("%s/control/%s", m.TopicPrefix, instanceID)
}

// ResponseTopic is where command responses are published.
func (m MQTTConfig) ResponseTopic(instanceID string) string {
	return m.ControlTopic(instanceID) + "/response"
}

// StatsTopic is where periodic statistics are published.
func (m MQTTConfig) StatsTopic(instanceID string) string {
	return fmt.Sprintf("%s/stats/%s", m.TopicPrefix, instanceID)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
