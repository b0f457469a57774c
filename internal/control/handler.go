// Package control exposes the filter configuration over MQTT: commands
// arrive as JSON on a control topic and responses are published on a
// sibling topic. Statistics are published periodically.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/Liamolucko/rectanglify"
	"github.com/Liamolucko/rectanglify/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Client is the part of mqtt.Client the handler uses.
type Client interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// Topics names the MQTT topics of one instance.
type Topics struct {
	Control  string
	Response string
	Stats    string
	QoS      byte
}

// CommandCallbacks connects commands to the running filter
type CommandCallbacks struct {
	OnGetStatus func() map[string]interface{}
	OnGetConfig func() rectanglify.Config
	OnSetConfig func(rectanglify.Config) error
}

// Handler handles control plane commands
type Handler struct {
	client    Client
	topics    Topics
	defaults  rectanglify.Config
	callbacks CommandCallbacks
	commands  chan Command
}

// NewHandler creates a new control plane handler. reset_config restores
// defaults.
func NewHandler(client Client, topics Topics, defaults rectanglify.Config, callbacks CommandCallbacks) *Handler {
	return &Handler{
		client:    client,
		topics:    topics,
		defaults:  defaults,
		callbacks: callbacks,
		commands:  make(chan Command, 10),
	}
}

// Start subscribes to the control topic and processes commands until ctx
// ends.
func (h *Handler) Start(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"topic": h.topics.Control,
		"qos":   h.topics.QoS,
	}).Info("control: subscribing to control plane")

	token := h.client.Subscribe(h.topics.Control, h.topics.QoS, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control: subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control: subscription failed: %w", err)
	}

	go h.processCommands(ctx)

	logrus.Info("control: handler started")
	return nil
}

// Stop unsubscribes from the control topic.
func (h *Handler) Stop() error {
	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(h.topics.Control)
		if !token.WaitTimeout(2 * time.Second) {
			return fmt.Errorf("control: unsubscribe timeout")
		}
	}
	logrus.Info("control: handler stopped")
	return nil
}

// messageHandler is called by the MQTT client for each control message
func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		logrus.WithError(err).Error("control: failed to parse command")
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	logrus.WithField("command", cmd.Command).Info("control: command received")

	select {
	case h.commands <- cmd:
	default:
		logrus.WithField("command", cmd.Command).Warn("control: command queue full, dropping command")
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			h.sendResponse(h.handleCommand(cmd))
		}
	}
}

// handleCommand executes a command and builds its response
func (h *Handler) handleCommand(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			return notImplemented(resp)
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "get_config":
		if h.callbacks.OnGetConfig == nil {
			return notImplemented(resp)
		}
		resp.Status = "success"
		resp.Data = ConfigData(h.callbacks.OnGetConfig())

	case "set_config":
		if h.callbacks.OnGetConfig == nil || h.callbacks.OnSetConfig == nil {
			return notImplemented(resp)
		}
		if len(cmd.Config) == 0 {
			resp.Status = "error"
			resp.Error = "missing or empty 'config' object"
			return resp
		}
		next, err := config.ApplyPatch(h.callbacks.OnGetConfig(), cmd.Config)
		if err == nil {
			err = h.callbacks.OnSetConfig(next)
		}
		if err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
			return resp
		}
		resp.Status = "success"
		resp.Data = ConfigData(next)

	case "reset_config":
		if h.callbacks.OnSetConfig == nil {
			return notImplemented(resp)
		}
		if err := h.callbacks.OnSetConfig(h.defaults); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
			return resp
		}
		resp.Status = "success"
		resp.Data = ConfigData(h.defaults)

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	return resp
}

func notImplemented(resp Response) Response {
	resp.Status = "error"
	resp.Error = resp.CommandAck + " not implemented"
	return resp
}

// sendResponse publishes a response on the response topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		logrus.WithError(err).Error("control: failed to marshal response")
		return
	}

	if err := publish(h.client, h.topics.Response, h.topics.QoS, payload); err != nil {
		logrus.WithError(err).Error("control: failed to publish response")
		return
	}

	logrus.WithFields(logrus.Fields{
		"command_ack": resp.CommandAck,
		"status":      resp.Status,
	}).Debug("control: response sent")
}

// ConfigData renders a config with the same keys set_config accepts.
func ConfigData(c rectanglify.Config) map[string]interface{} {
	return map[string]interface{}{
		"variance_threshold": c.VarianceThreshold,
		"min_region_size":    c.MinRegionSize,
		"max_depth":          c.MaxDepth,
		"draw_borders":       c.DrawBorders,
		"border_color":       c.BorderColor.String(),
		"border_thickness":   c.BorderThickness,
		"parallelism":        c.Parallelism,
	}
}

func publish(client Client, topic string, qos byte, payload []byte) error {
	token := client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}
