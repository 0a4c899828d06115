package broadlink

import (
	"errors"
	"fmt"
)

// Domain errors for the broadlink package.
var (
	// ErrTimeout is returned when a device does not answer in time.
	ErrTimeout = errors.New("broadlink: operation timed out")

	// ErrAuthFailed is returned when the auth handshake is rejected or
	// its response cannot be decoded.
	ErrAuthFailed = errors.New("broadlink: authentication failed")

	// ErrDeviceError is matched by every DeviceError.
	ErrDeviceError = errors.New("broadlink: device reported an error")

	// ErrInvalidPacket is returned for short or malformed responses.
	ErrInvalidPacket = errors.New("broadlink: invalid packet")

	// ErrChecksum is returned when a response checksum does not match.
	ErrChecksum = errors.New("broadlink: checksum mismatch")

	// ErrInvalidAddress is returned when a host cannot be parsed.
	ErrInvalidAddress = errors.New("broadlink: invalid address")
)

// Device error codes carried at offset 0x22 of a response.
const (
	codeAuthFailed   = -1
	codeLoggedOut    = -2
	codeOffline      = -3
	codeNotSupported = -4
	codeStorageFull  = -5
	codeBadStructure = -6
	codeKeyExpired   = -7
	codeSendFailed   = -8
	codeWriteFailed  = -9
	codeReadFailed   = -10
	codeSSIDNotFound = -11
)

var codeMessages = map[int16]string{
	codeAuthFailed:   "authentication failed",
	codeLoggedOut:    "logged out",
	codeOffline:      "device offline",
	codeNotSupported: "command not supported",
	codeStorageFull:  "storage full or no data",
	codeBadStructure: "structure abnormal",
	codeKeyExpired:   "control key expired",
	codeSendFailed:   "send failed",
	codeWriteFailed:  "write failed",
	codeReadFailed:   "read failed",
	codeSSIDNotFound: "ssid not found",
}

// DeviceError is a non-zero error code returned by a device.
type DeviceError struct {
	Code int16
}

func (e *DeviceError) Error() string {
	if msg, ok := codeMessages[e.Code]; ok {
		return fmt.Sprintf("broadlink: device error %d: %s", e.Code, msg)
	}
	return fmt.Sprintf("broadlink: device error %d", e.Code)
}

// Is lets errors.Is match ErrDeviceError.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceError
}

// KeyExpired reports whether the device asks for a new auth handshake.
func (e *DeviceError) KeyExpired() bool {
	return e.Code == codeKeyExpired
}
