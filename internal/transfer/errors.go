package transfer

import "errors"

var (
	// ErrNotHeader is returned when a line is not a transfer header.
	ErrNotHeader = errors.New("transfer: not a transfer header")

	// ErrBadHeader is returned for a malformed GET or FILE header.
	ErrBadHeader = errors.New("transfer: malformed header")

	// ErrNoSpace is returned when an upload exceeds the allowed share of
	// free space.
	ErrNoSpace = errors.New("transfer: not enough free space")

	// ErrSizeMismatch is returned when the body length differs from the
	// announced size.
	ErrSizeMismatch = errors.New("transfer: size mismatch")

	// ErrTimeout is returned when no body bytes arrive within the idle
	// timeout.
	ErrTimeout = errors.New("transfer: timeout")

	// ErrNotFound is returned when a requested file does not exist.
	ErrNotFound = errors.New("transfer: file not found")
)
