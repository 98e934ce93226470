package sensor

import "errors"

// Domain errors for the sensor package.
var (
	// ErrSensorExists is returned when a sensor name is taken.
	ErrSensorExists = errors.New("sensor: already exists")

	// ErrSensorNotFound is returned for an unknown id or name.
	ErrSensorNotFound = errors.New("sensor: not found")

	// ErrNoValue is returned when a sensor has no valid reading.
	ErrNoValue = errors.New("sensor: no valid value")

	// ErrTypeInvalid is returned for an unknown sensor type.
	ErrTypeInvalid = errors.New("sensor: invalid type")

	// ErrNameInvalid is returned for an empty or malformed name.
	ErrNameInvalid = errors.New("sensor: invalid name")

	// ErrNoReader is returned when a sensor is registered without a reader.
	ErrNoReader = errors.New("sensor: no reader")
)
