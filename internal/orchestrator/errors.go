package orchestrator

import "errors"

var (
	// ErrNotReady is returned by Setup when the device could not be reached.
	// The caller should retry later.
	ErrNotReady = errors.New("orchestrator: device not ready")

	// ErrAlreadyLoaded is returned by Setup for an entry that is running.
	ErrAlreadyLoaded = errors.New("orchestrator: entry already loaded")

	// ErrNotLoaded is returned for operations on an entry that is not running.
	ErrNotLoaded = errors.New("orchestrator: entry not loaded")
)
