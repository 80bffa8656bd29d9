// Package telemetry streams device lifecycle activity to a time-series
// sink.
//
// The Recorder implements the lifecycle manager's recorder interface and
// forwards each transition as an InfluxDB point, tagged by device name and
// packed bus address. On attach it also emits the device's capacity
// figures (queue sets, virtual functions) as gauges.
//
// All writes go through the sink's non-blocking batched API, so recorder
// callbacks return immediately and never stall a lifecycle operation.
package telemetry
