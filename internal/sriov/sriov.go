package sriov

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opendma/qdma-core/internal/device"
)

// regVFControl is the register holding the enabled virtual-function count
// on the config window. Zero disables virtualization.
const regVFControl = 0x10c

// ErrNotMapped is returned when a strategy runs against a device whose
// config window is not mapped.
var ErrNotMapped = errors.New("sriov: config window not mapped")

// Logger is the minimal logging surface the strategies need.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Controlling is the physical-function strategy: it programs the
// virtual-function budget on online and clears it on offline. It
// implements device.VirtStrategy.
type Controlling struct {
	logger Logger

	mu      sync.Mutex
	enabled map[uint32]int // bdf -> enabled vf count
}

// NewControlling creates the controlling-role strategy.
func NewControlling(logger Logger) *Controlling {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controlling{logger: logger, enabled: make(map[uint32]int)}
}

// Online programs the device's virtual-function budget. A zero budget is
// not an error; the card simply runs without virtual functions.
func (c *Controlling) Online(dev *device.Device) error {
	regs := dev.Registers()
	if regs == nil {
		return fmt.Errorf("%w: %s", ErrNotMapped, dev.Name())
	}

	vfMax := dev.Conf().VFMax
	if vfMax < 0 {
		vfMax = 0
	}

	regs.Write32(regVFControl, uint32(vfMax))

	c.mu.Lock()
	c.enabled[dev.BDF()] = vfMax
	c.mu.Unlock()

	if vfMax > 0 {
		c.logger.Info("virtual functions enabled",
			"device", dev.Name(), "count", vfMax)
	}
	return nil
}

// Offline clears the virtual-function budget. Safe to call on devices
// Online never touched.
func (c *Controlling) Offline(dev *device.Device) {
	c.mu.Lock()
	count, ok := c.enabled[dev.BDF()]
	delete(c.enabled, dev.BDF())
	c.mu.Unlock()

	if regs := dev.Registers(); regs != nil {
		regs.Write32(regVFControl, 0)
	}

	if ok && count > 0 {
		c.logger.Info("virtual functions disabled",
			"device", dev.Name(), "count", count)
	}
}

// EnabledCount reports the virtual-function count programmed for a device,
// zero when the device is not online.
func (c *Controlling) EnabledCount(bdf uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled[bdf]
}

// Sender sends peer messages to a device's mailbox topic.
// *mailbox.Mailbox satisfies it.
type Sender interface {
	Send(bdf uint32, payload []byte) error
}

// presenceMessage is the subordinate's registration with its controlling
// peer, carried over the device's own mailbox topic where the controlling
// instance listens with a wildcard subscription.
type presenceMessage struct {
	Op        string `json:"op"`
	Device    string `json:"device"`
	Timestamp string `json:"timestamp"`
}

// Subordinate is the virtual-function strategy: it announces the function
// to the controlling peer on online and retracts it on offline. It
// implements device.VirtStrategy.
type Subordinate struct {
	sender Sender
	logger Logger
}

// NewSubordinate creates the subordinate-role strategy.
func NewSubordinate(sender Sender, logger Logger) *Subordinate {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Subordinate{sender: sender, logger: logger}
}

// Online announces the function to the controlling peer. The
// announcement must land; a function the controlling peer cannot see is
// not usable.
func (s *Subordinate) Online(dev *device.Device) error {
	if err := s.send(dev, "register"); err != nil {
		return fmt.Errorf("sriov register %s: %w", dev.Name(), err)
	}
	return nil
}

// Offline retracts the announcement. Best-effort: a failure is logged,
// the controlling peer also watches the retained status topic.
func (s *Subordinate) Offline(dev *device.Device) {
	if err := s.send(dev, "unregister"); err != nil {
		s.logger.Warn("sriov unregister failed",
			"device", dev.Name(), "error", err)
	}
}

func (s *Subordinate) send(dev *device.Device, op string) error {
	msg := presenceMessage{
		Op:        op,
		Device:    dev.Name(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.sender.Send(dev.BDF(), payload)
}
