// Package pci provides the bus platform primitives the device core runs on.
//
// It defines the Device interface (claim/enable/DMA-mask/region-mapping
// operations of a slot occupant on the interconnect), the Region interface
// (an addressable window over a device's register space), and the Address
// type with its packed bus/slot.function encoding used as the registry key.
//
// SimDevice is an in-memory implementation backed by byte-slice BARs. It is
// used by the test suites and by the daemon's simulated bus, and supports
// fault injection on the claim/enable/DMA-mask steps so that lifecycle unwind
// paths can be exercised deterministically.
//
// Real hardware access (VFIO, sysfs resource files) would implement the same
// Device interface; the core never depends on anything beyond it.
package pci
