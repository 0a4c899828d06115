package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // log and abort the requested operation
//	}
var (
	// ErrDeviceNotFound is returned when no registered device matches a selector.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrUnsupported is returned when a device lacks a required capability.
	ErrUnsupported = errors.New("device: capability not supported")

	// ErrNoTransport is returned by placeholder handles that have no
	// transport bound yet.
	ErrNoTransport = errors.New("device: no transport bound")

	// ErrInvalidIdentity is returned when an identity has no address.
	ErrInvalidIdentity = errors.New("device: identity requires an address")

	// ErrMonitorRunning is returned when Start is called twice.
	ErrMonitorRunning = errors.New("device: monitor already running")
)
