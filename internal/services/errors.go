package services

import "errors"

var (
	// ErrUnknownService is returned for a service name with no handler.
	ErrUnknownService = errors.New("services: unknown service")

	// ErrInvalidParams is returned when service parameters fail validation.
	ErrInvalidParams = errors.New("services: invalid parameters")

	// ErrConfirmationRequired is returned by reset_device without confirm_reset.
	ErrConfirmationRequired = errors.New("services: confirmation required")

	// ErrCircuitOpen is returned while an entry's write breaker is open.
	ErrCircuitOpen = errors.New("services: device writes suspended")
)
