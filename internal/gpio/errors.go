package gpio

import "errors"

// Domain errors for the gpio package.
var (
	// ErrPinInvalid is returned for a pin outside the physical and virtual ranges.
	ErrPinInvalid = errors.New("gpio: invalid pin")

	// ErrModeInvalid is returned for an unknown mode or one the pin cannot take.
	ErrModeInvalid = errors.New("gpio: invalid mode")

	// ErrPinInUse is returned when a device already owns the pin.
	ErrPinInUse = errors.New("gpio: pin in use")

	// ErrDeviceExists is returned when a device name is taken.
	ErrDeviceExists = errors.New("gpio: device already exists")

	// ErrDeviceNotFound is returned for an unknown device name or pin.
	ErrDeviceNotFound = errors.New("gpio: device not found")

	// ErrTypeInvalid is returned for an unknown device type.
	ErrTypeInvalid = errors.New("gpio: invalid device type")

	// ErrWrongType is returned when an operation does not apply to the device.
	ErrWrongType = errors.New("gpio: operation not supported by device")

	// ErrISRInvalid is returned for an interrupt slot outside 0..ISRSlots-1.
	ErrISRInvalid = errors.New("gpio: invalid isr id")

	// ErrNameInvalid is returned for empty or malformed device names.
	ErrNameInvalid = errors.New("gpio: invalid name")
)
