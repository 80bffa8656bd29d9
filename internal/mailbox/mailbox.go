package mailbox

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opendma/qdma-core/internal/device"
	"github.com/opendma/qdma-core/internal/infrastructure/mqtt"
)

// Broker is the transport surface the mailbox needs. *mqtt.Client
// satisfies it; tests substitute an in-memory fake.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger is the minimal logging surface the mailbox needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// PeerHandler is invoked for every message received on a device's mbox
// topic. Handlers run on the broker's delivery goroutines and must not
// block.
type PeerHandler func(bdf uint32, payload []byte)

// statusMessage is the retained per-device presence announcement.
type statusMessage struct {
	Status    string `json:"status"`
	Device    string `json:"device"`
	Timestamp string `json:"timestamp"`
}

// Mailbox implements device.Mailbox over an MQTT broker.
//
// All methods are safe for concurrent use.
type Mailbox struct {
	broker Broker
	qos    byte
	logger Logger

	mu     sync.Mutex
	topics map[uint32]string // bdf -> subscribed mbox topic
	onPeer PeerHandler
}

// New creates a mailbox over the given broker. A nil logger is replaced
// with a silent one.
func New(broker Broker, qos byte, logger Logger) *Mailbox {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Mailbox{
		broker: broker,
		qos:    qos,
		logger: logger,
		topics: make(map[uint32]string),
	}
}

// SetPeerHandler installs the callback for incoming peer messages.
// Pass nil to drop messages silently.
func (m *Mailbox) SetPeerHandler(handler PeerHandler) {
	m.mu.Lock()
	m.onPeer = handler
	m.mu.Unlock()
}

// Init subscribes the device to its mbox topic and announces it attached.
func (m *Mailbox) Init(dev *device.Device) error {
	bdf := dev.BDF()
	topic := mqtt.Topics{}.DeviceMbox(bdf)

	err := m.broker.Subscribe(topic, m.qos, func(_ string, payload []byte) error {
		m.mu.Lock()
		handler := m.onPeer
		m.mu.Unlock()
		if handler != nil {
			handler(bdf, payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mailbox subscribe %s: %w", topic, err)
	}

	m.mu.Lock()
	m.topics[bdf] = topic
	m.mu.Unlock()

	if err := m.announce(dev, "attached"); err != nil {
		m.broker.Unsubscribe(topic)
		m.mu.Lock()
		delete(m.topics, bdf)
		m.mu.Unlock()
		return err
	}

	m.logger.Info("mailbox channel open", "device", dev.Name(), "topic", topic)
	return nil
}

// Start announces the device online. On a subordinate instance this is
// what makes the device visible to its controlling peer.
func (m *Mailbox) Start(dev *device.Device) {
	if err := m.announce(dev, "online"); err != nil {
		m.logger.Warn("mailbox online announcement failed",
			"device", dev.Name(), "error", err)
	}
}

// Send publishes a peer message to another device's mbox topic.
func (m *Mailbox) Send(bdf uint32, payload []byte) error {
	topic := mqtt.Topics{}.DeviceMbox(bdf)
	if err := m.broker.Publish(topic, payload, m.qos, false); err != nil {
		return fmt.Errorf("mailbox send %s: %w", topic, err)
	}
	return nil
}

// Cleanup retracts the device's announcement and unsubscribes its mbox
// topic. Safe to call repeatedly and on devices Init never touched.
func (m *Mailbox) Cleanup(dev *device.Device) {
	bdf := dev.BDF()

	m.mu.Lock()
	topic, ok := m.topics[bdf]
	delete(m.topics, bdf)
	m.mu.Unlock()

	if !ok {
		return
	}

	if err := m.announce(dev, "offline"); err != nil {
		m.logger.Warn("mailbox offline announcement failed",
			"device", dev.Name(), "error", err)
	}

	if err := m.broker.Unsubscribe(topic); err != nil {
		m.logger.Warn("mailbox unsubscribe failed",
			"device", dev.Name(), "topic", topic, "error", err)
	}
}

// announce publishes a retained status message for the device.
func (m *Mailbox) announce(dev *device.Device, status string) error {
	msg := statusMessage{
		Status:    status,
		Device:    dev.Name(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mailbox status payload: %w", err)
	}

	topic := mqtt.Topics{}.DeviceStatus(dev.BDF())
	if err := m.broker.Publish(topic, payload, m.qos, true); err != nil {
		return fmt.Errorf("mailbox announce %s: %w", topic, err)
	}
	return nil
}
