package timer

import "errors"

// Scheduler errors.
var (
	// ErrTimerExists is returned when adding an id that exists without replace.
	ErrTimerExists = errors.New("timer: already exists")

	// ErrTimerNotFound is returned for an unknown id.
	ErrTimerNotFound = errors.New("timer: not found")

	// ErrInvalidPeriod is returned for periods outside MinPeriod..MaxPeriod
	// and malformed cron expressions.
	ErrInvalidPeriod = errors.New("timer: invalid period")

	// ErrInvalidMode is returned for a mode other than once, repeat or replace.
	ErrInvalidMode = errors.New("timer: invalid mode")

	// ErrEmptyCommand is returned when the command string is empty.
	ErrEmptyCommand = errors.New("timer: empty command")
)
