package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrAlreadyAttached) {
//	    // handle double-open case
//	}
var (
	// ErrInvalidInput is returned when a required argument is nil or missing.
	ErrInvalidInput = errors.New("device: invalid input")

	// ErrAlreadyAttached is returned when opening a bus device that is
	// already registered.
	ErrAlreadyAttached = errors.New("device: already attached")

	// ErrResourceClaim is returned when the device's resource regions
	// cannot be claimed (typically held by another driver).
	ErrResourceClaim = errors.New("device: cannot claim resource regions")

	// ErrDeviceEnable is returned when the bus device cannot be enabled.
	ErrDeviceEnable = errors.New("device: cannot enable bus device")

	// ErrNoSuitableDMAMask is returned when neither 64-bit nor 32-bit DMA
	// addressing can be negotiated.
	ErrNoSuitableDMAMask = errors.New("device: no suitable dma mask")

	// ErrRegionMap is returned when the config BAR cannot be mapped.
	ErrRegionMap = errors.New("device: cannot map config bar")

	// ErrSignatureMismatch is returned when the mapped config BAR does not
	// carry the expected identification signature.
	ErrSignatureMismatch = errors.New("device: config bar signature mismatch")

	// ErrCoprocessorMap is returned when the STM co-processor BAR cannot
	// be mapped.
	ErrCoprocessorMap = errors.New("device: cannot map stm bar")

	// ErrCoprocessorRevision is returned when the STM co-processor reports
	// an unsupported revision.
	ErrCoprocessorRevision = errors.New("device: unsupported stm revision")

	// ErrNoInterfaceEnabled is returned when neither memory-mapped nor
	// streaming transfer mode is enabled on the device.
	ErrNoInterfaceEnabled = errors.New("device: no transfer mode enabled")

	// ErrHandleInvalid is returned when a handle does not name a currently
	// registered device, or any of its identity checks fail.
	ErrHandleInvalid = errors.New("device: invalid handle")

	// ErrStateOutOfRange is returned when a configuration state value is
	// outside the defined enumeration.
	ErrStateOutOfRange = errors.New("device: config state out of range")
)
