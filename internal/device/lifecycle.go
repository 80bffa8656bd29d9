package device

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/opendma/qdma-core/internal/pci"
)

// ManagerConfig configures a lifecycle Manager. Nil collaborator fields
// default to no-op implementations.
type ManagerConfig struct {
	Role     Role
	Init     Initializer
	Mailbox  Mailbox
	Virt     VirtStrategy
	Recorder Recorder
}

// Manager drives attached devices through the open/online/offline/close
// state machine. All methods are safe for concurrent use.
type Manager struct {
	registry *Registry
	role     Role
	init     Initializer
	mbox     Mailbox
	virt     VirtStrategy
	recorder Recorder
	logger   Logger
}

// NewManager creates a lifecycle manager with an empty registry.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		registry: NewRegistry(cfg.Role == RoleSubordinate),
		role:     cfg.Role,
		init:     cfg.Init,
		mbox:     cfg.Mailbox,
		virt:     cfg.Virt,
		recorder: cfg.Recorder,
		logger:   noopLogger{},
	}
	if m.role == "" {
		m.role = RoleControlling
	}
	if m.init == nil {
		m.init = NoopInitializer{}
	}
	if m.mbox == nil {
		m.mbox = NoopMailbox{}
	}
	if m.virt == nil {
		m.virt = NoopVirt{}
	}
	if m.recorder == nil {
		m.recorder = noopRecorder{}
	}
	return m
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Registry exposes the device registry for lookups, iteration and dumps.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Role returns the manager's operating role.
func (m *Manager) Role() Role {
	return m.role
}

// Open attaches a bus device: claims its resource regions, enables it,
// negotiates DMA addressing, registers a device object, maps the register
// regions and brings the device online. On success the final configuration
// is copied back into conf and the opaque handle is returned.
//
// Any failure unwinds exactly the steps already completed, in reverse
// order, and leaves no registry trace, no mapped region and no claimed
// resource. The one deliberate exception: when everything up to and
// including mapping succeeds and only the online sequence fails, the bus
// device is left claimed and enabled for a follow-up Close.
func (m *Manager) Open(modName string, conf *Config) (Handle, error) {
	if modName == "" {
		return "", fmt.Errorf("%w: empty module name", ErrInvalidInput)
	}
	if conf == nil {
		return "", fmt.Errorf("%w: nil config", ErrInvalidInput)
	}
	busDev := conf.BusDev
	if busDev == nil {
		return "", fmt.Errorf("%w: nil bus device", ErrInvalidInput)
	}

	conf.BarConfig = -1
	conf.BarUser = -1

	addr := busDev.Address()
	m.logger.Info("opening device",
		"module", modName,
		"address", addr.String(),
		"vendor", fmt.Sprintf("%#x", busDev.VendorID()),
		"device", fmt.Sprintf("%#x", busDev.DeviceID()),
	)

	if existing := m.registry.findByBusDev(busDev); existing != nil {
		m.logger.Warn("device already attached",
			"module", modName, "bus_dev", busDev.Name())
		return "", fmt.Errorf("%w: %s", ErrAlreadyAttached, busDev.Name())
	}

	if err := busDev.RequestRegions(modName); err != nil {
		// Some other driver may legitimately hold the device.
		m.logger.Info("cannot claim resource regions",
			"bus_dev", busDev.Name(), "error", err)
		return "", fmt.Errorf("%w: %w", ErrResourceClaim, err)
	}

	if err := busDev.Enable(); err != nil {
		m.logger.Error("cannot enable bus device",
			"bus_dev", busDev.Name(), "error", err)
		busDev.ReleaseRegions()
		return "", fmt.Errorf("%w: %w", ErrDeviceEnable, err)
	}

	busDev.EnableRelaxedOrdering()
	busDev.SetMaster(true)

	if err := m.setDMAMask(busDev); err != nil {
		busDev.Disable()
		busDev.ReleaseRegions()
		return "", err
	}

	dev := newDevice(conf, modName, uuid.NewString())

	// Registration happens before mapping so failure paths can still
	// locate the partially initialized object.
	m.registry.insert(dev)

	dev.mu.Lock()
	dev.conf.Name = fmt.Sprintf("qdma%05x-p%s", dev.conf.BDF, busDev.Name())
	dev.mu.Unlock()

	if err := m.mapBars(dev, busDev); err != nil {
		m.unwindOpen(dev, busDev)
		return "", err
	}

	if dev.stmEnabled() {
		m.programSTMPortMap(dev)
	}

	if m.role == RoleControlling {
		m.queryAttributes(dev)
		if !dev.MemoryMappedEnabled() && !dev.StreamingEnabled() {
			m.logger.Info("neither streaming nor memory-mapped mode enabled",
				"device", dev.Name())
			m.unwindOpen(dev, busDev)
			return "", ErrNoInterfaceEnabled
		}
	}

	*conf = dev.getConf()
	m.recorder.DeviceAttached(*conf)

	hndl := Handle(dev.token)
	if err := m.Online(busDev, hndl); err != nil {
		// The bus device stays claimed and enabled here; callers are
		// expected to follow up with Close.
		m.Offline(busDev, hndl)
		m.unmapBars(dev)
		m.registry.remove(dev)
		m.recorder.DeviceDetached(dev.getConf())
		return "", err
	}

	finalConf := dev.getConf()
	m.logger.Info("device opened",
		"device", finalConf.Name,
		"bdf", fmt.Sprintf("%05x", finalConf.BDF),
		"idx", finalConf.Idx,
		"qsets_max", finalConf.QSetsMax,
		"vf_max", finalConf.VFMax,
	)

	return hndl, nil
}

// Online brings a device online: initializes the device hardware state,
// clears the offline flag, initializes the control channel and runs the
// role-specific virtualization bring-up. A collaborator failure tears the
// hardware state back down but leaves the device registered.
func (m *Manager) Online(busDev pci.Device, hndl Handle) error {
	dev, err := m.checkHandle("online", busDev, hndl, false)
	if err != nil {
		return err
	}

	if err := m.init.Init(dev); err != nil {
		m.logger.Warn("device init failed", "device", dev.Name(), "error", err)
		m.init.Cleanup(dev)
		return fmt.Errorf("device init: %w", err)
	}

	dev.setOffline(false)

	if err := m.mbox.Init(dev); err != nil {
		m.logger.Warn("mailbox init failed", "device", dev.Name(), "error", err)
		m.init.Cleanup(dev)
		return fmt.Errorf("mailbox init: %w", err)
	}

	if m.role == RoleSubordinate {
		m.mbox.Start(dev)
	}

	if err := m.virt.Online(dev); err != nil {
		m.logger.Warn("virtualization bring-up failed",
			"device", dev.Name(), "error", err)
		m.init.Cleanup(dev)
		return err
	}

	m.recorder.DeviceOnline(dev.getConf())
	return nil
}

// Offline takes a device offline. Best-effort: validation is permissive on
// a bus-device mismatch, collaborator failures are logged, and there is no
// error return. The offline flag is set before any teardown so concurrent
// callers observe the transition immediately.
func (m *Manager) Offline(busDev pci.Device, hndl Handle) {
	dev, err := m.checkHandle("offline", busDev, hndl, true)
	if err != nil {
		return
	}

	dev.setOffline(true)

	m.virt.Offline(dev)
	m.init.Cleanup(dev)
	m.mbox.Cleanup(dev)

	m.recorder.DeviceOffline(dev.getConf())
}

// Close detaches a device: forces it offline, unmaps its regions, releases
// the bus resources, deregisters and retires the handle. Irreversible:
// after Close every validation against the old handle fails.
func (m *Manager) Close(busDev pci.Device, hndl Handle) {
	dev, err := m.checkHandle("close", busDev, hndl, false)
	if err != nil {
		return
	}

	m.Offline(busDev, hndl)

	m.unmapBars(dev)

	busDev.ReleaseRegions()
	busDev.Disable()

	m.registry.remove(dev)

	conf := dev.getConf()
	m.logger.Info("device closed", "device", conf.Name)
	m.recorder.DeviceDetached(conf)
}

// GetConfig returns a copy of the device configuration snapshot.
func (m *Manager) GetConfig(hndl Handle) (Config, error) {
	dev, err := m.checkToken("get_config", hndl)
	if err != nil {
		return Config{}, err
	}
	return dev.getConf(), nil
}

// SetConfig replaces the device configuration snapshot.
func (m *Manager) SetConfig(hndl Handle, conf *Config) error {
	if conf == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidInput)
	}
	dev, err := m.checkToken("set_config", hndl)
	if err != nil {
		return err
	}
	dev.setConf(*conf)
	return nil
}

// SetConfigState sets the configuration state. The range check runs before
// the handle check: an out-of-range value is rejected without touching any
// device state, even for an invalid handle.
func (m *Manager) SetConfigState(hndl Handle, state ConfigState) error {
	if state < StateUnconfigured || state > StateUser {
		return fmt.Errorf("%w: %d", ErrStateOutOfRange, state)
	}
	dev, err := m.checkToken("set_config_state", hndl)
	if err != nil {
		return err
	}

	dev.mu.Lock()
	dev.conf.State = state
	dev.mu.Unlock()
	return nil
}

// setDMAMask negotiates the widest supported DMA addressing: 64-bit with a
// 32-bit consistent mask preferred, plain 32-bit as the fallback.
func (m *Manager) setDMAMask(busDev pci.Device) error {
	if err := busDev.SetDMAMask(64); err == nil {
		// 64-bit DMA with 32-bit consistent allocations.
		if err := busDev.SetConsistentDMAMask(32); err != nil {
			return fmt.Errorf("%w: consistent: %w", ErrNoSuitableDMAMask, err)
		}
		return nil
	}

	if err := busDev.SetDMAMask(32); err == nil {
		m.logger.Info("using a 32-bit dma mask", "bus_dev", busDev.Name())
		if err := busDev.SetConsistentDMAMask(32); err != nil {
			return fmt.Errorf("%w: consistent: %w", ErrNoSuitableDMAMask, err)
		}
		return nil
	}

	m.logger.Info("no suitable dma addressing possible", "bus_dev", busDev.Name())
	return ErrNoSuitableDMAMask
}

// unwindOpen reverses a partially completed Open after registration:
// unmap, deregister, disable, release, the exact reverse of acquisition.
func (m *Manager) unwindOpen(dev *Device, busDev pci.Device) {
	m.unmapBars(dev)
	m.registry.remove(dev)
	busDev.Disable()
	busDev.ReleaseRegions()
}

func (d *Device) stmEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stmEn
}
