package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opendma/qdma-core/internal/device"
)

// deviceResponse is the JSON shape of one attached device.
type deviceResponse struct {
	BDF       string `json:"bdf"`
	Name      string `json:"name"`
	Idx       int    `json:"idx"`
	State     string `json:"state"`
	QSetsMax  int    `json:"qsets_max"`
	VFMax     int    `json:"vf_max"`
	Offline   bool   `json:"offline"`
	Streaming bool   `json:"streaming"`
	MemMapped bool   `json:"memory_mapped"`
}

func newDeviceResponse(dev *device.Device) deviceResponse {
	conf := dev.Conf()
	return deviceResponse{
		BDF:       formatBDF(conf.BDF),
		Name:      conf.Name,
		Idx:       conf.Idx,
		State:     conf.State.String(),
		QSetsMax:  conf.QSetsMax,
		VFMax:     conf.VFMax,
		Offline:   dev.Offline(),
		Streaming: dev.StreamingEnabled(),
		MemMapped: dev.MemoryMappedEnabled(),
	}
}

// formatBDF renders a packed bus address in the five-hex-digit form used
// across logs and topics.
func formatBDF(bdf uint32) string {
	s := strconv.FormatUint(uint64(bdf), 16)
	for len(s) < 5 {
		s = "0" + s
	}
	return s
}

// parseBDF parses the five-hex-digit address form from a URL parameter.
func parseBDF(raw string) (uint32, bool) {
	v, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// handleListDevices returns all attached devices in registry order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := make([]deviceResponse, 0, s.registry.Len())
	for dev := s.registry.First(); dev != nil; dev = s.registry.Next(dev) {
		devices = append(devices, newDeviceResponse(dev))
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by packed bus address.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	bdf, ok := parseBDF(chi.URLParam(r, "bdf"))
	if !ok {
		writeBadRequest(w, "invalid device address")
		return
	}

	dev := s.registry.FindByAddress(bdf)
	if dev == nil {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, newDeviceResponse(dev))
}

// dumpBufferSize bounds the order-table dump output.
const dumpBufferSize = 1 << 12

// handleDeviceDump returns the registry order table as plain text, in the
// same format the diagnostic tooling emits.
func (s *Server) handleDeviceDump(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write([]byte(s.registry.Dump(dumpBufferSize)))
}

// eventResponse is the JSON shape of one lifecycle history entry.
type eventResponse struct {
	Event     string    `json:"event"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// handleDeviceEvents returns the lifecycle history for a device from the
// inventory store. Devices that were attached in the past but are no longer
// in the registry still have history here.
func (s *Server) handleDeviceEvents(w http.ResponseWriter, r *http.Request) {
	if s.inventory == nil {
		writeNotFound(w, "inventory not enabled")
		return
	}

	bdf, ok := parseBDF(chi.URLParam(r, "bdf"))
	if !ok {
		writeBadRequest(w, "invalid device address")
		return
	}

	events, err := s.inventory.Events(r.Context(), bdf)
	if err != nil {
		s.logger.Error("inventory events query failed", "bdf", formatBDF(bdf), "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	if len(events) == 0 {
		writeNotFound(w, "no history for device")
		return
	}

	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = eventResponse{Event: e.Event, Name: e.Name, CreatedAt: e.CreatedAt}
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": out, "count": len(out)})
}
