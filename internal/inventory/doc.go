// Package inventory persists device lifecycle history to SQLite.
//
// It keeps one row per attached device with its last known configuration
// plus an append-only event log of attach/online/offline/detach
// transitions. The store implements device.Recorder; writes are
// best-effort with a short timeout so a slow disk never stalls a
// lifecycle operation, and failures are logged rather than propagated.
package inventory
