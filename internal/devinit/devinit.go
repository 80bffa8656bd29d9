package devinit

import (
	"errors"
	"fmt"

	"github.com/opendma/qdma-core/internal/device"
)

// Register offsets on the config window programmed during init.
const (
	regGlobalControl = 0x100
	regRingBase      = 0x104
	regQueueCount    = 0x108

	controlRun = 1 << 0
)

// defaultRingBase is programmed when the configuration does not carry a
// queue budget; the hardware treats a zero ring base as "no rings".
const defaultRingBase = 0x1000

// ErrNotMapped is returned when init runs against a device whose config
// window is not mapped.
var ErrNotMapped = errors.New("devinit: config window not mapped")

// Logger is the minimal logging surface the initializer needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Initializer programs device hardware state during the online sequence.
// It implements device.Initializer.
type Initializer struct {
	logger Logger
}

// New creates an initializer. A nil logger is replaced with a silent one.
func New(logger Logger) *Initializer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Initializer{logger: logger}
}

// Init programs the ring base, queue count and run bit on the device's
// config window.
func (in *Initializer) Init(dev *device.Device) error {
	regs := dev.Registers()
	if regs == nil {
		return fmt.Errorf("%w: %s", ErrNotMapped, dev.Name())
	}

	conf := dev.Conf()
	qsets := conf.QSetsMax
	if qsets < 0 {
		qsets = 0
	}

	regs.Write32(regRingBase, defaultRingBase)
	regs.Write32(regQueueCount, uint32(qsets))
	regs.Write32(regGlobalControl, controlRun)

	in.logger.Info("device hardware initialized",
		"device", dev.Name(), "queue_count", qsets)
	return nil
}

// Cleanup zeroes the registers Init programmed. Safe to call repeatedly
// and on devices Init never touched.
func (in *Initializer) Cleanup(dev *device.Device) {
	regs := dev.Registers()
	if regs == nil {
		return
	}

	regs.Write32(regGlobalControl, 0)
	regs.Write32(regQueueCount, 0)
	regs.Write32(regRingBase, 0)
}
