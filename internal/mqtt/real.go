package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	// DefaultBufferSize is the number of messages kept while disconnected.
	DefaultBufferSize = 256
)

// Config holds broker connection settings.
type Config struct {
	Broker     string
	ClientID   string
	BufferSize int

	// OnConnectionChange, if set, is called with the new state on connect
	// and on connection loss.
	OnConnectionChange func(connected bool)

	// OnBufferDrop, if set, is called for every buffered message lost to
	// overflow while disconnected.
	OnBufferDrop func()
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are buffered and sent after reconnecting.
type RealPublisher struct {
	client paho.Client
	log    *logrus.Logger
	notify func(bool)

	mu            sync.Mutex
	buffer        *ringBuffer
	connectedOnce bool
}

// NewRealPublisher creates a publisher for the given broker. The initial
// connection is retried in the background, so a missing broker does not
// prevent startup.
func NewRealPublisher(cfg Config, log *logrus.Logger) (*RealPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker address required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "cresta-receiver"
	}

	p := newPublisher(nil, cfg, log)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventShutdown,
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.WithField("broker", cfg.Broker).Warn("mqtt connect pending, messages will be buffered")
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newPublisher(client paho.Client, cfg Config, log *logrus.Logger) *RealPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	return &RealPublisher{
		client: client,
		log:    log,
		notify: cfg.OnConnectionChange,
		buffer: newRingBuffer(cfg.BufferSize, log.WithField("component", "mqtt"), cfg.OnBufferDrop),
	}
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	reconnect := p.connectedOnce
	p.connectedOnce = true
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	p.log.WithField("buffered", len(pending)).Info("mqtt connected")
	if p.notify != nil {
		p.notify(true)
	}

	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.log.WithError(err).WithField("topic", m.topic).Warn("replay of buffered message failed")
		}
	}

	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventReconnected})
		if err == nil {
			err = p.publish(TopicSystem, 1, false, payload)
		}
		if err != nil {
			p.log.WithError(err).Warn("failed to publish reconnect event")
		}
	}
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.log.WithError(err).Warn("mqtt connection lost")
	if p.notify != nil {
		p.notify(false)
	}
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// publish sends a message, or buffers it while the connection is down.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	m := bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(m)
		p.mu.Unlock()
		return nil
	}
	return p.send(m)
}

// Publish sends a measurement to the sensor's topic. Measurements are
// retained so new subscribers get the latest value of every sensor.
func (p *RealPublisher) Publish(event MeasurementEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), retained
	return p.publish(SensorTopic(event.Sensor.Name), 0, true, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	if err := p.publish(TopicSystem, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
