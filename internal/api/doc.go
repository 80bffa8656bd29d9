// Package api implements the read-only admin HTTP API for qdmacore.
//
// This package provides:
//   - REST endpoints for inspecting attached devices and their configuration
//   - The device order table in the wire dump format used by diagnostics
//   - Lifecycle history served from the SQLite inventory
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Architecture
//
// The API server sits beside the lifecycle manager and reads from its
// registry. It never mutates device state; lifecycle transitions are driven
// by the bus layer and the mailbox channel, not by HTTP clients.
//
// # Graceful Degradation
//
// The server operates without the inventory store. Registry-backed endpoints
// keep working and history endpoints return 404.
package api
