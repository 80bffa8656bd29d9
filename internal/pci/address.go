package pci

import (
	"fmt"
	"regexp"
	"strconv"
)

// BDF packing layout: bus in the high bits, slot in the middle, function in
// the low bits. The packed value fits in 20 bits and is conventionally
// printed as five hex digits.
const (
	shiftBus  = 12
	shiftSlot = 4

	maxSlot     = 0x1f
	maxFunction = 0x07
)

var addressPattern = regexp.MustCompile(`(?i)^([0-9a-f]{1,2}):([0-9a-f]{1,2})\.([0-7])$`)

// Address identifies a device by its bus, slot and function numbers.
type Address struct {
	Bus      uint8
	Slot     uint8 // 0..31
	Function uint8 // 0..7
}

// BDF returns the packed bus/slot/function encoding used as a registry key.
func (a Address) BDF() uint32 {
	return uint32(a.Bus)<<shiftBus |
		uint32(a.Slot&maxSlot)<<shiftSlot |
		uint32(a.Function&maxFunction)
}

// String formats the address as "bb:ss.ff" with two hex digits per part.
func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x.%02x", a.Bus, a.Slot, a.Function)
}

// ParseAddress parses a "bb:ss.f" address string.
//
// Accepted forms:
//   - 01:00.0
//   - 1:0.0 (leading zeros optional)
func ParseAddress(s string) (Address, error) {
	m := addressPattern.FindStringSubmatch(s)
	if m == nil {
		return Address{}, fmt.Errorf("pci: invalid address %q", s)
	}

	bus, err := strconv.ParseUint(m[1], 16, 8)
	if err != nil {
		return Address{}, fmt.Errorf("pci: invalid bus in %q: %w", s, err)
	}
	slot, err := strconv.ParseUint(m[2], 16, 8)
	if err != nil {
		return Address{}, fmt.Errorf("pci: invalid slot in %q: %w", s, err)
	}
	if slot > maxSlot {
		return Address{}, fmt.Errorf("pci: slot out of range in %q", s)
	}
	fn, err := strconv.ParseUint(m[3], 16, 8)
	if err != nil {
		return Address{}, fmt.Errorf("pci: invalid function in %q: %w", s, err)
	}

	return Address{Bus: uint8(bus), Slot: uint8(slot), Function: uint8(fn)}, nil
}
