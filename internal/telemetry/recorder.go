package telemetry

import (
	"github.com/opendma/qdma-core/internal/device"
)

// Sink is the subset of the time-series client the recorder writes to.
// *influxdb.Client satisfies it.
type Sink interface {
	WriteLifecycleEvent(deviceID string, bdf uint32, event string)
	WriteDeviceMetric(deviceID string, measurement string, value float64)
}

// Recorder forwards lifecycle transitions to a time-series sink.
type Recorder struct {
	sink Sink
}

// NewRecorder creates a recorder writing to sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// DeviceAttached emits the attach event plus the device's capacity gauges.
func (r *Recorder) DeviceAttached(conf device.Config) {
	r.sink.WriteLifecycleEvent(conf.Name, conf.BDF, "attached")
	r.sink.WriteDeviceMetric(conf.Name, "qsets_max", float64(conf.QSetsMax))
	r.sink.WriteDeviceMetric(conf.Name, "vf_max", float64(conf.VFMax))
}

// DeviceOnline emits the online event.
func (r *Recorder) DeviceOnline(conf device.Config) {
	r.sink.WriteLifecycleEvent(conf.Name, conf.BDF, "online")
}

// DeviceOffline emits the offline event.
func (r *Recorder) DeviceOffline(conf device.Config) {
	r.sink.WriteLifecycleEvent(conf.Name, conf.BDF, "offline")
}

// DeviceDetached emits the detach event.
func (r *Recorder) DeviceDetached(conf device.Config) {
	r.sink.WriteLifecycleEvent(conf.Name, conf.BDF, "detached")
}
