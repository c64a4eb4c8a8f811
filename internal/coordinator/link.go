package coordinator

import "context"

// DeviceLink abstracts the device's push protocol.
//
// ReceiveNext runs on the observation goroutine while writers call
// WriteControl, and Shutdown may Close the link while either is blocked, so
// every method must be safe for concurrent use. A link may be reopened after
// Close.
type DeviceLink interface {
	// Open establishes a session. It must honour ctx for its deadline.
	Open(ctx context.Context) error

	// ReceiveNext blocks until the device pushes a status delta or the
	// session fails. It must return promptly once ctx is cancelled or the
	// link is closed.
	ReceiveNext(ctx context.Context) (Status, error)

	// WriteControl sends a single control command and reports whether the
	// device accepted it.
	WriteControl(ctx context.Context, key string, value any) error

	// Close releases the session. Close on a closed link is a no-op.
	Close() error
}

// Control is one key/value pair of a control write.
type Control struct {
	Key   string
	Value any
}
