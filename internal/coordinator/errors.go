package coordinator

import "errors"

// Domain errors for the coordinator package.
var (
	// ErrConnect is returned by FirstRefresh when the device could not be
	// reached within the connect timeout. Background reconnect failures are
	// absorbed and never returned.
	ErrConnect = errors.New("coordinator: device not ready")

	// ErrLink marks a failure of an established session. It is logged and
	// triggers reconnection; it is never returned to callers.
	ErrLink = errors.New("coordinator: link failed")

	// ErrWrite is returned by SetControlValue when the device rejected the
	// write or the session was unavailable.
	ErrWrite = errors.New("coordinator: control write failed")

	// ErrNotConnected is wrapped by ErrWrite when no session is open.
	ErrNotConnected = errors.New("coordinator: not connected")

	// ErrShutdown is returned by operations attempted after Shutdown.
	ErrShutdown = errors.New("coordinator: shut down")

	// ErrAlreadyStarted is returned when FirstRefresh is called twice.
	ErrAlreadyStarted = errors.New("coordinator: already started")
)
