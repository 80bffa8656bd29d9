package device

import (
	"fmt"

	"github.com/opendma/qdma-core/internal/pci"
)

// checkHandle validates a caller-supplied handle against the registry.
//
// It confirms that the bus device names a currently registered entry, that
// the entry's generation token matches the presented handle, and that the
// entry still records the bus device the caller supplied. The third check is
// a defensive double-check against a stale or reused bus device reference;
// in permissive mode a mismatch there is logged instead of rejected, which
// Offline relies on to stay best-effort.
//
// This is the first check in every externally reachable operation that
// takes a raw handle.
func (m *Manager) checkHandle(op string, busDev pci.Device, hndl Handle, permissive bool) (*Device, error) {
	if busDev == nil {
		return nil, fmt.Errorf("%w: %s: nil bus device", ErrInvalidInput, op)
	}

	dev := m.registry.findByBusDev(busDev)
	if dev == nil {
		m.logger.Info("handle check: no match found",
			"op", op, "bus_dev", busDev.Name(), "handle", string(hndl))
		return nil, fmt.Errorf("%w: %s: %s not registered", ErrHandleInvalid, op, busDev.Name())
	}

	if dev.token != string(hndl) {
		m.logger.Info("handle check: token mismatch",
			"op", op, "bus_dev", busDev.Name(), "handle", string(hndl))
		return nil, fmt.Errorf("%w: %s: token mismatch", ErrHandleInvalid, op)
	}

	dev.mu.Lock()
	stored := dev.conf.BusDev
	dev.mu.Unlock()
	if stored != busDev {
		m.logger.Info("handle check: bus device mismatch",
			"op", op, "bus_dev", busDev.Name())
		if !permissive {
			return nil, fmt.Errorf("%w: %s: bus device mismatch", ErrHandleInvalid, op)
		}
	}

	return dev, nil
}

// checkToken validates a handle for the configuration accessors, which take
// no bus device reference: a registry lookup by generation token.
func (m *Manager) checkToken(op string, hndl Handle) (*Device, error) {
	dev := m.registry.findByToken(string(hndl))
	if dev == nil {
		m.logger.Info("handle check: unknown token", "op", op, "handle", string(hndl))
		return nil, fmt.Errorf("%w: %s: unknown token", ErrHandleInvalid, op)
	}
	return dev, nil
}
