package config

import (
	"fmt"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills derived defaults.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if _, err := cfg.Processing.Rectanglify(); err != nil {
		return fmt.Errorf("processing: %w", err)
	}

	if strings.TrimSpace(cfg.Pipeline.Source) == "" {
		return fmt.Errorf("pipeline.source is required")
	}
	if strings.TrimSpace(cfg.Pipeline.Sink) == "" {
		return fmt.Errorf("pipeline.sink is required")
	}
	if cfg.Pipeline.OutputFPS < 0 {
		return fmt.Errorf("pipeline.output_fps must be >= 0")
	}
	if cfg.Pipeline.QueueDepth < 0 {
		return fmt.Errorf("pipeline.queue_depth must be >= 0")
	}
	if cfg.Pipeline.ReconnectInitialDelayS < 0 || cfg.Pipeline.ReconnectMaxDelayS < 0 {
		return fmt.Errorf("pipeline reconnect delays must be >= 0")
	}
	if cfg.Pipeline.WarmupDurationS < 0 {
		return fmt.Errorf("pipeline.warmup_duration_s must be >= 0")
	}

	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "rectanglify"
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if cfg.MQTT.StatsIntervalS <= 0 {
		cfg.MQTT.StatsIntervalS = 10
	}

	if cfg.Output.EveryN <= 0 {
		cfg.Output.EveryN = 1
	}
	if cfg.Output.Dir != "" {
		switch cfg.Output.Format {
		case "png", "jpeg", "svg":
		case "jpg":
			cfg.Output.Format = "jpeg"
		default:
			return fmt.Errorf("output.format %q unknown (must be png, jpeg or svg)", cfg.Output.Format)
		}
	}

	return nil
}
