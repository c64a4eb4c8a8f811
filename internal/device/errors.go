package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID or host does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID or host is already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidHost is returned when the host is empty or malformed.
	ErrInvalidHost = errors.New("device: invalid host")

	// ErrInvalidMAC is returned when a MAC address is not in colon notation.
	ErrInvalidMAC = errors.New("device: invalid mac address")

	// ErrInvalidStatus is returned when a status snapshot exceeds size limits.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrSnapshotCodec is returned when a status snapshot cannot be encoded or decoded.
	ErrSnapshotCodec = errors.New("device: snapshot codec")
)
