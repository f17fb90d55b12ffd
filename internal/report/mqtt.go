package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"a9g-tracker/internal/gps"
)

// Publisher sends a snapshot somewhere.
type Publisher interface {
	Publish(ctx context.Context, snap gps.Snapshot) error
}

// MQTTPublisher publishes JSON snapshots to one retained topic.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	log     *zap.SugaredLogger
}

// DialMQTT connects to broker and returns a publisher for topic.
func DialMQTT(broker, clientID, topic string, logger *zap.SugaredLogger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("report: mqtt connect %s: %w", broker, token.Error())
	}
	p := NewMQTTPublisher(client, topic, logger)
	p.log.Infow("mqtt connected", "broker", broker, "topic", topic)
	return p, nil
}

func NewMQTTPublisher(client mqtt.Client, topic string, logger *zap.SugaredLogger) *MQTTPublisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MQTTPublisher{client: client, topic: topic, timeout: 5 * time.Second, log: logger.Named("mqtt")}
}

func (p *MQTTPublisher) Publish(ctx context.Context, snap gps.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("report: mqtt marshal: %w", err)
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("report: mqtt publish %s: timeout", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("report: mqtt publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
