package pci

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors for the simulated bus device.
var (
	// ErrRegionsClaimed is returned when another owner holds the regions.
	ErrRegionsClaimed = errors.New("pci: resource regions already claimed")

	// ErrNoRegion is returned when mapping a BAR the device does not expose.
	ErrNoRegion = errors.New("pci: no such region")

	// ErrDMAMask is returned when the requested addressing width is not
	// supported for the device.
	ErrDMAMask = errors.New("pci: unsupported dma mask")
)

// SimConfig describes a simulated bus device.
type SimConfig struct {
	Addr     Address
	Vendor   uint16
	Device   uint16
	BarSizes []int // length per BAR index; 0 means the BAR is absent

	// MaxDMABits caps SetDMAMask. Zero means 64.
	MaxDMABits uint
}

// SimDevice is an in-memory Device implementation. BARs are byte slices
// with little-endian 32-bit register access.
//
// All methods are safe for concurrent use.
type SimDevice struct {
	cfg SimConfig

	mu         sync.Mutex
	owner      string
	enabled    bool
	master     bool
	relaxed    bool
	dmaBits    uint
	consistent uint
	bars       [][]byte

	// Fault injection for lifecycle unwind tests. When non-nil, the
	// corresponding operation fails with the stored error.
	failRequest error
	failEnable  error
}

// NewSimDevice creates a simulated device with zero-filled BARs.
func NewSimDevice(cfg SimConfig) *SimDevice {
	if cfg.MaxDMABits == 0 {
		cfg.MaxDMABits = 64
	}
	bars := make([][]byte, len(cfg.BarSizes))
	for i, size := range cfg.BarSizes {
		if size > 0 {
			bars[i] = make([]byte, size)
		}
	}
	return &SimDevice{cfg: cfg, bars: bars}
}

func (d *SimDevice) Name() string {
	return fmt.Sprintf("0000:%s", d.cfg.Addr)
}

func (d *SimDevice) Address() Address { return d.cfg.Addr }
func (d *SimDevice) VendorID() uint16 { return d.cfg.Vendor }
func (d *SimDevice) DeviceID() uint16 { return d.cfg.Device }

// FailRequestRegions injects an error into the next RequestRegions calls.
// Pass nil to clear.
func (d *SimDevice) FailRequestRegions(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failRequest = err
}

// FailEnable injects an error into the next Enable calls. Pass nil to clear.
func (d *SimDevice) FailEnable(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failEnable = err
}

func (d *SimDevice) RequestRegions(owner string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failRequest != nil {
		return d.failRequest
	}
	if d.owner != "" && d.owner != owner {
		return fmt.Errorf("%w: held by %s", ErrRegionsClaimed, d.owner)
	}
	d.owner = owner
	return nil
}

func (d *SimDevice) ReleaseRegions() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owner = ""
}

func (d *SimDevice) Enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failEnable != nil {
		return d.failEnable
	}
	d.enabled = true
	return nil
}

func (d *SimDevice) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = false
	d.master = false
}

func (d *SimDevice) SetMaster(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.master = enabled
}

func (d *SimDevice) EnableRelaxedOrdering() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relaxed = true
}

func (d *SimDevice) SetDMAMask(bits uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if bits > d.cfg.MaxDMABits {
		return fmt.Errorf("%w: %d bits", ErrDMAMask, bits)
	}
	d.dmaBits = bits
	return nil
}

func (d *SimDevice) SetConsistentDMAMask(bits uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if bits > d.cfg.MaxDMABits {
		return fmt.Errorf("%w: %d bits", ErrDMAMask, bits)
	}
	d.consistent = bits
	return nil
}

func (d *SimDevice) RegionLen(bar int) int {
	if bar < 0 || bar >= len(d.bars) {
		return 0
	}
	return len(d.bars[bar])
}

func (d *SimDevice) MapRegion(bar int, length int) (Region, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if bar < 0 || bar >= len(d.bars) || d.bars[bar] == nil {
		return nil, fmt.Errorf("%w: bar %d", ErrNoRegion, bar)
	}
	if length <= 0 || length > len(d.bars[bar]) {
		length = len(d.bars[bar])
	}
	return &simRegion{mem: d.bars[bar][:length]}, nil
}

// Program32 writes a register value directly into a BAR's backing store,
// bypassing mapping. Tests and the daemon's sim bus use it to seed identity
// and capability registers before the core maps the device.
func (d *SimDevice) Program32(bar, off int, v uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if bar < 0 || bar >= len(d.bars) || off+4 > len(d.bars[bar]) {
		return
	}
	binary.LittleEndian.PutUint32(d.bars[bar][off:], v)
}

// Peek32 reads a register value directly from a BAR's backing store.
func (d *SimDevice) Peek32(bar, off int) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if bar < 0 || bar >= len(d.bars) || off+4 > len(d.bars[bar]) {
		return 0
	}
	return binary.LittleEndian.Uint32(d.bars[bar][off:])
}

// Claimed reports whether the resource regions are currently held.
func (d *SimDevice) Claimed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.owner != ""
}

// Enabled reports whether the device is powered up.
func (d *SimDevice) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Master reports whether bus-mastering is on.
func (d *SimDevice) Master() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.master
}

// DMABits returns the negotiated addressing width, 0 if never set.
func (d *SimDevice) DMABits() uint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dmaBits
}

// simRegion is a mapped window over a SimDevice BAR.
type simRegion struct {
	mu  sync.Mutex
	mem []byte
}

func (r *simRegion) Read32(off int) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mem == nil || off+4 > len(r.mem) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.mem[off:])
}

func (r *simRegion) Write32(off int, v uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mem == nil || off+4 > len(r.mem) {
		return
	}
	binary.LittleEndian.PutUint32(r.mem[off:], v)
}

func (r *simRegion) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mem)
}

func (r *simRegion) Unmap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mem = nil
}
