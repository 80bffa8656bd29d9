package device

// Function capability register, read from the config BAR on
// controlling-role devices after mapping. The low bits report which
// transfer interfaces the silicon has enabled.
const (
	regFuncCap = 0x10

	funcCapMM        uint32 = 1 << 0 // memory-mapped engine enabled
	funcCapST        uint32 = 1 << 1 // streaming engine enabled
	funcCapFLR       uint32 = 1 << 2 // function-level reset present
	funcCapMMChShift        = 8
	funcCapMMChMask  uint32 = 0xff
)

// queryAttributes refreshes the device capability flags from hardware,
// replacing the optimistic defaults set at allocation.
func (m *Manager) queryAttributes(dev *Device) {
	dev.mu.Lock()
	regs := dev.regs
	dev.mu.Unlock()
	if regs == nil {
		return
	}

	cap := regs.Read32(regFuncCap)

	channels := int(cap >> funcCapMMChShift & funcCapMMChMask)
	if channels == 0 {
		channels = 1
	}

	dev.mu.Lock()
	dev.mmModeEn = cap&funcCapMM != 0
	dev.stModeEn = cap&funcCapST != 0
	dev.flrPresent = cap&funcCapFLR != 0
	dev.mmChannelMax = channels
	dev.mu.Unlock()

	m.logger.Debug("device attributes",
		"device", dev.Name(),
		"mm_mode", cap&funcCapMM != 0,
		"st_mode", cap&funcCapST != 0,
		"mm_channels", channels,
	)
}
