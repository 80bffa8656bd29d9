package device

import (
	"fmt"
	"strings"
	"sync"

	"github.com/opendma/qdma-core/internal/pci"
)

// Registry is the process-wide collection of attached devices, keyed by
// packed bus address and kept in insertion order.
//
// One lock serializes all structural changes (insert/remove) and all scans
// (find/iterate/dump). The lock is held only for the duration of the scan or
// mutation, never across hardware I/O or collaborator calls. Once insert
// returns, the device is visible to every subsequent lookup; once remove
// returns, to none.
type Registry struct {
	mu      sync.Mutex
	devices []*Device // insertion order
	byToken map[string]*Device

	// vf controls index assignment: on a subordinate-role registry only
	// the bus number delimits a card group, because the slot number can
	// vary across virtual functions of a single card.
	vf bool
}

// NewRegistry creates an empty device registry. vf selects subordinate-role
// index-assignment semantics.
func NewRegistry(vf bool) *Registry {
	return &Registry{
		byToken: make(map[string]*Device),
		vf:      vf,
	}
}

// insert registers a device: computes and stores its packed bus address,
// appends it to the ordered collection, reassigns per-card indices and
// resets its configuration state to Unconfigured.
//
// Index assignment walks the whole collection in insertion order; the index
// resets to 1 whenever the scanned bus (and, on a controlling-role registry,
// slot) number changes, producing a 1..k ranking within each physical-card
// group. Removal deliberately does not trigger reassignment, so indices of
// surviving devices never shift on close.
func (r *Registry) insert(dev *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev.mu.Lock()
	dev.conf.BDF = dev.conf.BusDev.Address().BDF()
	dev.mu.Unlock()
	r.devices = append(r.devices, dev)
	r.byToken[dev.token] = dev

	var lastBus, lastSlot uint8
	first := true
	idx := 0
	for _, d := range r.devices {
		d.mu.Lock()
		a := d.conf.BusDev.Address()
		if first || lastBus != a.Bus || (!r.vf && lastSlot != a.Slot) {
			idx = 0
		}
		idx++
		d.conf.Idx = idx
		d.mu.Unlock()
		lastBus = a.Bus
		lastSlot = a.Slot
		first = false
	}

	dev.mu.Lock()
	dev.conf.State = StateUnconfigured
	dev.mu.Unlock()
}

// remove unlinks a device from the collection. Indices of the remaining
// devices are not recomputed.
func (r *Registry) remove(dev *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, d := range r.devices {
		if d == dev {
			r.devices = append(r.devices[:i], r.devices[i+1:]...)
			break
		}
	}
	delete(r.byToken, dev.token)
}

// findByBusDev returns the device registered for the given bus device,
// nil when absent.
func (r *Registry) findByBusDev(busDev pci.Device) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.devices {
		d.mu.Lock()
		match := d.conf.BusDev == busDev
		d.mu.Unlock()
		if match {
			return d
		}
	}
	return nil
}

// FindByAddress returns the device registered under the given packed bus
// address, nil when absent.
func (r *Registry) FindByAddress(bdf uint32) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.devices {
		d.mu.Lock()
		match := d.conf.BDF == bdf
		d.mu.Unlock()
		if match {
			return d
		}
	}
	return nil
}

// findByToken returns the device holding the given handle token,
// nil when absent.
func (r *Registry) findByToken(token string) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byToken[token]
}

// First returns the first registered device in insertion order,
// nil when the registry is empty.
func (r *Registry) First() *Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.devices) == 0 {
		return nil
	}
	return r.devices[0]
}

// Next returns the device after dev in insertion order. It returns nil when
// dev is the last entry or is not currently registered.
func (r *Registry) Next(dev *Device) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, d := range r.devices {
		if d == dev {
			if i+1 < len(r.devices) {
				return r.devices[i+1]
			}
			return nil
		}
	}
	return nil
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Dump produces a newline-delimited listing of the registered devices, one
// line per device:
//
//	qdma<5-hex-bdf>\t<bus>:<slot>.<function>
//
// The listing is truncated to capacity bytes.
func (r *Registry) Dump(capacity int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for _, d := range r.devices {
		d.mu.Lock()
		bdf := d.conf.BDF
		a := d.conf.BusDev.Address()
		d.mu.Unlock()
		fmt.Fprintf(&b, "qdma%05x\t%02x:%02x.%02x\n",
			bdf, a.Bus, a.Slot, a.Function)
		if b.Len() >= capacity {
			break
		}
	}

	s := b.String()
	if capacity >= 0 && len(s) > capacity {
		s = s[:capacity]
	}
	return s
}
