package pci

// Region is an addressable window over a device's register space.
//
// Offsets are byte offsets from the start of the mapped window; registers
// are 32 bits wide and little-endian, matching the hardware layout.
type Region interface {
	// Read32 reads the 32-bit register at the given byte offset.
	Read32(off int) uint32

	// Write32 writes the 32-bit register at the given byte offset.
	Write32(off int, v uint32)

	// Len returns the mapped window length in bytes.
	Len() int

	// Unmap releases the window. The Region must not be used afterwards.
	Unmap()
}

// Device is the host platform's handle to a slot occupant on the
// interconnect. The device core drives its acquire/release protocol
// exclusively through this interface.
type Device interface {
	// Name returns the platform's name for the device (e.g. "0000:01:00.0").
	Name() string

	// Address returns the device's bus/slot/function identity.
	Address() Address

	// VendorID and DeviceID identify the silicon.
	VendorID() uint16
	DeviceID() uint16

	// RequestRegions claims exclusive ownership of the device's resource
	// regions for the named owner. Fails if another owner holds them.
	RequestRegions(owner string) error

	// ReleaseRegions releases a prior claim. Safe to call when unclaimed.
	ReleaseRegions()

	// Enable powers up the device for register access.
	Enable() error

	// Disable powers the device back down. Safe to call when disabled.
	Disable()

	// SetMaster enables or disables bus-mastering (DMA initiation).
	SetMaster(enabled bool)

	// EnableRelaxedOrdering permits relaxed transaction ordering.
	EnableRelaxedOrdering()

	// SetDMAMask negotiates the DMA addressing width in bits.
	// Fails if the platform cannot address that width for this device.
	SetDMAMask(bits uint) error

	// SetConsistentDMAMask negotiates the addressing width for
	// coherent (descriptor) allocations.
	SetConsistentDMAMask(bits uint) error

	// RegionLen returns the length in bytes of the given BAR, 0 if absent.
	RegionLen(bar int) int

	// MapRegion maps up to length bytes of the given BAR.
	MapRegion(bar int, length int) (Region, error)
}
