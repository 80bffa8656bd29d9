package device

import (
	"sync"

	"github.com/opendma/qdma-core/internal/pci"
)

// ConfigState is the device configuration phase, used elsewhere in the
// system to gate queue setup. The enumeration is ordered: a device moves
// from Unconfigured to User-configured.
type ConfigState int

const (
	// StateUnconfigured is the initial state assigned at registration.
	StateUnconfigured ConfigState = iota

	// StateUser marks a device whose queues were configured by the user.
	StateUser
)

// String returns a human-readable state name.
func (s ConfigState) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateUser:
		return "user"
	default:
		return "unknown"
	}
}

// Role selects the driver's operating mode: full-capability controlling
// (physical function) or restricted subordinate (virtual function).
type Role string

const (
	RoleControlling Role = "controlling"
	RoleSubordinate Role = "subordinate"
)

// Handle is the opaque device handle returned by Open. It is a generation
// token issued at registration time; it never dereferences to anything and
// is only meaningful to the validation checks in this package.
type Handle string

// Config is a device configuration snapshot. Callers pass it to Open and
// read it back through GetConfig; the lifecycle manager fills in the
// identity fields (BDF, Idx, Name, BarConfig) during open.
type Config struct {
	// BusDev is the host platform's handle to the slot occupant.
	BusDev pci.Device

	// BDF is the packed bus/slot/function address, printed as five hex
	// digits. Assigned at registration.
	BDF uint32

	// Idx is the 1-based rank of the device within its physical-card
	// group. Assigned at registration.
	Idx int

	// Name is the display name, derived from the BDF and the underlying
	// bus device name (qdma%05x-p<name>).
	Name string

	// BarConfig and BarUser are BAR indices, -1 when unset.
	BarConfig int
	BarUser   int

	// QSetsMax and VFMax are capacity limits: queue sets and, on a
	// controlling-role device, the number of virtual functions to enable
	// when the device goes online.
	QSetsMax int
	VFMax    int

	// State is the current configuration phase.
	State ConfigState
}

// Device is the book-keeping object for one attached bus device. It is
// created by Open, owned by the holder of the returned handle, and destroyed
// by Close.
type Device struct {
	modName string
	token   string // handle generation token, issued at registration

	// regs is the mapped config BAR window; non-nil iff mapped.
	regs pci.Region

	// stmRegs is the optional co-processor window.
	stmRegs pci.Region
	stmEn   bool
	stmRev  uint8

	// Capability flags, defaulted at allocation and refined by the
	// attribute query on controlling-role devices.
	flrPresent   bool
	stModeEn     bool
	mmModeEn     bool
	mmChannelMax int

	offline bool

	// hwLock serializes hardware register programming sequences.
	// mu guards general object state, including the config snapshot.
	// Neither is ever held while blocking on the registry lock.
	hwLock sync.Mutex
	mu     sync.Mutex

	conf Config
}

// Name returns the device display name.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conf.Name
}

// BDF returns the packed bus address assigned at registration.
func (d *Device) BDF() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conf.BDF
}

// Offline reports whether the device is offline. Devices are created
// offline and stay so until the online sequence fully succeeds.
func (d *Device) Offline() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offline
}

// StreamingEnabled reports whether streaming transfer mode is enabled.
func (d *Device) StreamingEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stModeEn
}

// MemoryMappedEnabled reports whether memory-mapped transfer mode is enabled.
func (d *Device) MemoryMappedEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mmModeEn
}

// Registers returns the mapped config BAR window, nil when unmapped.
// Collaborators use it for hardware programming during init and cleanup.
func (d *Device) Registers() pci.Region {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs
}

// Conf returns a copy of the current configuration snapshot.
// Collaborators read it during init and teardown.
func (d *Device) Conf() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conf
}

func (d *Device) setOffline(offline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = offline
}

func (d *Device) getConf() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conf
}

func (d *Device) setConf(conf Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conf = conf
}

// newDevice allocates a zeroed book-keeping structure, copies in the caller
// configuration and applies the default capability flags. The attribute
// query refines the flags later; until then everything defaults to enabled
// with a single memory-mapped channel.
func newDevice(conf *Config, modName, token string) *Device {
	return &Device{
		modName:      modName,
		token:        token,
		flrPresent:   true,
		stModeEn:     true,
		mmModeEn:     true,
		mmChannelMax: 1,
		offline:      true,
		conf:         *conf,
	}
}
