package device

import (
	"fmt"

	"github.com/opendma/qdma-core/internal/pci"
)

// Hardware layout constants for the config BAR and the optional STM
// co-processor BAR.
const (
	// configBar is the fixed BAR index carrying the DMA config registers.
	configBar = 0

	// maxConfigBarLen caps the mapped window over the config BAR.
	maxConfigBarLen = 0x1000000

	// The 32-bit word at the start of the config BAR identifies the DMA
	// block; its upper 16 bits must match configIdent.
	configIdentMask uint32 = 0xffff0000
	configIdent     uint32 = 0x1fd30000

	// stmDeviceID is the silicon variant that carries the STM
	// co-processor on stmBar.
	stmDeviceID uint16 = 0x6aa0
	stmBar             = 2

	// STM register block: the revision word spells 'S','T','M' in its
	// upper three bytes with the revision number in the low byte.
	stmRegBase    = 0x200
	stmRegRev     = 0x00
	stmRegH2CMode = 0x04
	stmMaxRev     = 2

	// stmPortMap is programmed into the upper half of the H2C mode
	// register once the STM region is mapped.
	stmPortMap uint32 = 0x00e1
)

// mapBars maps the device register regions and validates their identity.
//
// The config BAR is mapped first, clamped to maxConfigBarLen. On a
// controlling-role manager the identification word is verified; a mismatch
// unmaps the region and fails. If the silicon variant carries the STM
// co-processor its BAR is mapped next; a mapping failure there leaves the
// config BAR mapped for the caller's unwind, while a revision check failure
// unmaps both regions before returning.
func (m *Manager) mapBars(dev *Device, busDev pci.Device) error {
	dev.mu.Lock()
	dev.conf.BarConfig = configBar
	name := dev.conf.Name
	dev.mu.Unlock()

	mapLen := busDev.RegionLen(configBar)
	if mapLen > maxConfigBarLen {
		mapLen = maxConfigBarLen
	}

	regs, err := busDev.MapRegion(configBar, mapLen)
	if err != nil {
		m.logger.Error("unable to map config bar",
			"device", name, "bar", configBar, "error", err)
		return fmt.Errorf("%w: bar %d: %w", ErrRegionMap, configBar, err)
	}
	dev.mu.Lock()
	dev.regs = regs
	dev.mu.Unlock()

	if m.role == RoleControlling {
		id := regs.Read32(0)
		if id&configIdentMask != configIdent {
			m.logger.Info("no dma config bar found",
				"device", name, "id", fmt.Sprintf("%#x", id))
			m.unmapBars(dev)
			return fmt.Errorf("%w: id %#x", ErrSignatureMismatch, id)
		}
	}

	if busDev.DeviceID() == stmDeviceID {
		stm, err := busDev.MapRegion(stmBar, busDev.RegionLen(stmBar))
		if err != nil {
			m.logger.Warn("unable to map stm bar",
				"device", name, "bar", stmBar, "error", err)
			return fmt.Errorf("%w: bar %d: %w", ErrCoprocessorMap, stmBar, err)
		}
		dev.mu.Lock()
		dev.stmRegs = stm
		dev.mu.Unlock()

		rev := stm.Read32(stmRegBase + stmRegRev)
		if !(rev>>24 == 'S' && (rev>>16)&0xff == 'T' && (rev>>8)&0xff == 'M' &&
			rev&0xff <= stmMaxRev) {
			m.logger.Error("unsupported stm revision",
				"device", name, "rev", fmt.Sprintf("%#x", rev))
			m.unmapBars(dev)
			return fmt.Errorf("%w: rev %#x", ErrCoprocessorRevision, rev)
		}
		dev.mu.Lock()
		dev.stmEn = true
		dev.stmRev = uint8(rev & 0xff)
		dev.mu.Unlock()
	}

	return nil
}

// unmapBars unmaps whichever regions are currently mapped and clears their
// pointers. Idempotent: safe on a partially or fully unmapped device.
func (m *Manager) unmapBars(dev *Device) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.regs != nil {
		dev.regs.Unmap()
		dev.regs = nil
	}
	if dev.stmRegs != nil {
		dev.stmRegs.Unmap()
		dev.stmRegs = nil
	}
}

// programSTMPortMap writes the fixed port mapping into the upper half of
// the STM H2C mode register. Called once after a successful mapBars on a
// device with the co-processor present.
func (m *Manager) programSTMPortMap(dev *Device) {
	dev.hwLock.Lock()
	defer dev.hwLock.Unlock()

	dev.mu.Lock()
	stm := dev.stmRegs
	dev.mu.Unlock()
	if stm == nil {
		return
	}

	v := stm.Read32(stmRegBase + stmRegH2CMode)
	v &= 0x0000ffff
	v |= stmPortMap << 16
	stm.Write32(stmRegBase+stmRegH2CMode, v)
}
