package platform

import "errors"

// Errors returned by pin backends.
var (
	// ErrPinInvalid is returned for a pin number outside the board range.
	ErrPinInvalid = errors.New("platform: invalid pin")

	// ErrUnsupported is returned when a backend cannot perform an operation.
	ErrUnsupported = errors.New("platform: operation not supported")
)
