package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Connect establishes a connection to the broker at host:port with
// automatic reconnection.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		logrus.WithFields(logrus.Fields{
			"broker":    broker,
			"client_id": clientID,
		}).Info("control: mqtt connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logrus.WithError(err).WithField("broker", broker).Warn("control: mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)

	logrus.WithField("broker", broker).Info("control: connecting to mqtt broker")
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("control: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("control: mqtt connection failed: %w", err)
	}
	return client, nil
}

// StatsPublisher publishes a statistics snapshot every interval.
type StatsPublisher struct {
	client   Client
	topic    string
	qos      byte
	interval time.Duration
	collect  func() interface{}
}

// NewStatsPublisher creates a publisher; collect is called once per tick
// and its result is sent as JSON.
func NewStatsPublisher(client Client, topic string, qos byte, interval time.Duration, collect func() interface{}) *StatsPublisher {
	return &StatsPublisher{
		client:   client,
		topic:    topic,
		qos:      qos,
		interval: interval,
		collect:  collect,
	}
}

// Run publishes until ctx ends. Publish failures are logged and skipped.
func (p *StatsPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PublishOnce(); err != nil {
				logrus.WithError(err).WithField("topic", p.topic).Warn("control: stats publish failed")
			}
		}
	}
}

// PublishOnce publishes a single snapshot.
func (p *StatsPublisher) PublishOnce() error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(p.collect())
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return publish(p.client, p.topic, p.qos, payload)
}
