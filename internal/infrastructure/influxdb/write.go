package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceMetric writes a single device measurement to InfluxDB.
//
// This is the primary method for recording device telemetry data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "qdma3b000-p0000:3b:00.0")
//   - measurement: The metric name (e.g., "qsets_max", "dma_bits")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteDeviceMetric("qdma3b000-p0000:3b:00.0", "qsets_max", 128)
//	client.WriteDeviceMetric("qdma3b000-p0000:3b:00.0", "vf_enabled", 4)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLifecycleEvent records a device lifecycle transition.
//
// Used for tracking attach/online/offline/detach history alongside the
// relational inventory, so dashboards can chart device churn over time.
//
// Parameters:
//   - deviceID: Device identifier
//   - bdf: Packed bus/device/function address
//   - event: Transition name ("attached", "online", "offline", "detached")
func (c *Client) WriteLifecycleEvent(deviceID string, bdf uint32, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"lifecycle",
		map[string]string{
			"device_id": deviceID,
			"bdf":       fmt.Sprintf("%05x", bdf),
			"event":     event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("daemon_stats",
//	    map[string]string{"host": "dma-host-01"},
//	    map[string]interface{}{"devices_attached": 4, "devices_online": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
