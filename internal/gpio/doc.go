// Package gpio tracks pin state and runs the device state machines bound to
// pins.
//
// The Tracker is the single owner of pin records. It validates pin numbers
// (physical pins 0..N-1, virtual pins 100..254), keeps the logical state
// after inversion and switches modes on demand: writing an input turns it
// into an output, reading an output turns it into an input.
//
// The Manager owns every device. Other subsystems refer to devices by name
// and look them up on each use, so a deleted device is simply not found.
// Devices are ticked from the cooperative loop and report events through an
// ordered list of callbacks; the command callback runs the device's shell
// command for the event.
package gpio
