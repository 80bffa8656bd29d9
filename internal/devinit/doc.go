// Package devinit programs per-device hardware state over the mapped
// config register window during the online sequence, and tears it back
// down on offline.
//
// The sequence is deliberately small: ring and queue base context plus a
// global run bit. Cleanup zeroes the same registers and is idempotent, so
// the lifecycle manager may invoke it on every teardown path without
// tracking whether init completed.
package devinit
