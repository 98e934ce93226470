package gpio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ocfu/espconsole/internal/platform"
)

// Virtual pin range.
const (
	VirtualMin = 100
	VirtualMax = 254
)

// Mode is the tracked mode of a pin.
type Mode int

// Pin modes.
const (
	ModeUnset Mode = iota
	ModeInput
	ModeOutput
	ModeInputPullUp
	ModeInputPullDown
	ModeOpenDrain
	ModeVirtual
)

var modeNames = map[Mode]string{
	ModeUnset:         "unset",
	ModeInput:         "input",
	ModeOutput:        "output",
	ModeInputPullUp:   "input_pullup",
	ModeInputPullDown: "input_pulldown",
	ModeOpenDrain:     "open_drain",
	ModeVirtual:       "virtual",
}

// String returns the mode name.
func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMode accepts full names and the short forms in, out, pullup,
// pulldown, od.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "in", "input":
		return ModeInput, nil
	case "out", "output":
		return ModeOutput, nil
	case "pullup", "input_pullup":
		return ModeInputPullUp, nil
	case "pulldown", "input_pulldown":
		return ModeInputPullDown, nil
	case "od", "open_drain", "opendrain":
		return ModeOpenDrain, nil
	case "virtual":
		return ModeVirtual, nil
	}
	return ModeUnset, fmt.Errorf("%w: %q", ErrModeInvalid, s)
}

func (m Mode) isInput() bool {
	return m == ModeInput || m == ModeInputPullUp || m == ModeInputPullDown
}

func (m Mode) isOutput() bool {
	return m == ModeOutput || m == ModeOpenDrain
}

func (m Mode) platform() platform.Mode {
	switch m {
	case ModeOutput:
		return platform.ModeOutput
	case ModeInputPullUp:
		return platform.ModeInputPullUp
	case ModeInputPullDown:
		return platform.ModeInputPullDown
	case ModeOpenDrain:
		return platform.ModeOpenDrain
	default:
		return platform.ModeInput
	}
}

// Pin is the tracked record of one pin.
type Pin struct {
	Num         int
	Mode        Mode
	State       bool // logical, after inversion
	Inverted    bool
	PWM         bool
	Duty        int
	Analog      bool
	AnalogValue int
}

// Tracker owns the pin records.
type Tracker struct {
	io    platform.PinIO
	count int
	pins  map[int]*Pin
}

// NewTracker creates a tracker over io with count physical pins.
func NewTracker(io platform.PinIO, count int) *Tracker {
	return &Tracker{io: io, count: count, pins: make(map[int]*Pin)}
}

// IsVirtual reports whether pin is in the virtual range.
func IsVirtual(pin int) bool {
	return pin >= VirtualMin && pin <= VirtualMax
}

// Valid reports whether pin is a physical or virtual pin.
func (t *Tracker) Valid(pin int) bool {
	return (pin >= 0 && pin < t.count) || IsVirtual(pin)
}

// PinCount returns the number of physical pins.
func (t *Tracker) PinCount() int { return t.count }

func (t *Tracker) record(pin int) (*Pin, error) {
	if !t.Valid(pin) {
		return nil, fmt.Errorf("%w: %d", ErrPinInvalid, pin)
	}
	p, ok := t.pins[pin]
	if !ok {
		p = &Pin{Num: pin}
		if IsVirtual(pin) {
			p.Mode = ModeVirtual
		}
		t.pins[pin] = p
	}
	return p, nil
}

// SetMode changes the pin mode. Virtual pins always stay virtual; physical
// pins cannot be made virtual.
func (t *Tracker) SetMode(pin int, mode Mode) error {
	p, err := t.record(pin)
	if err != nil {
		return err
	}
	if IsVirtual(pin) {
		p.Mode = ModeVirtual
		return nil
	}
	if mode == ModeUnset || mode == ModeVirtual {
		return fmt.Errorf("%w: %s on physical pin %d", ErrModeInvalid, mode, pin)
	}
	if err := t.io.SetMode(pin, mode.platform()); err != nil {
		return fmt.Errorf("setting mode of pin %d: %w", pin, err)
	}
	p.Mode = mode
	return nil
}

// SetInverted sets the inversion flag of pin.
func (t *Tracker) SetInverted(pin int, inverted bool) error {
	p, err := t.record(pin)
	if err != nil {
		return err
	}
	p.Inverted = inverted
	return nil
}

// Write sets the logical state. Input and unset pins become outputs first.
func (t *Tracker) Write(pin int, state bool) error {
	p, err := t.record(pin)
	if err != nil {
		return err
	}
	if p.Mode == ModeVirtual {
		p.State = state
		return nil
	}
	if !p.Mode.isOutput() {
		if err := t.SetMode(pin, ModeOutput); err != nil {
			return err
		}
	}
	if err := t.io.Write(pin, state != p.Inverted); err != nil {
		return fmt.Errorf("writing pin %d: %w", pin, err)
	}
	p.State = state
	p.PWM = false
	return nil
}

// Read returns the logical state. Output and unset pins become inputs first.
func (t *Tracker) Read(pin int) (bool, error) {
	p, err := t.record(pin)
	if err != nil {
		return false, err
	}
	if p.Mode == ModeVirtual {
		return p.State, nil
	}
	if !p.Mode.isInput() {
		if err := t.SetMode(pin, ModeInput); err != nil {
			return false, err
		}
	}
	raw, err := t.io.Read(pin)
	if err != nil {
		return false, fmt.Errorf("reading pin %d: %w", pin, err)
	}
	p.State = raw != p.Inverted
	return p.State, nil
}

// Level returns the logical state without changing modes: inputs are read,
// outputs and virtual pins report their stored state.
func (t *Tracker) Level(pin int) (bool, error) {
	p, err := t.record(pin)
	if err != nil {
		return false, err
	}
	if p.Mode.isInput() || p.Mode == ModeUnset {
		return t.Read(pin)
	}
	return p.State, nil
}

// AnalogRead samples a physical pin.
func (t *Tracker) AnalogRead(pin int) (int, error) {
	p, err := t.record(pin)
	if err != nil {
		return 0, err
	}
	if IsVirtual(pin) {
		return 0, fmt.Errorf("%w: analog on virtual pin %d", ErrModeInvalid, pin)
	}
	v, err := t.io.AnalogRead(pin)
	if err != nil {
		return 0, fmt.Errorf("analog read pin %d: %w", pin, err)
	}
	if p.Inverted {
		v = platform.AnalogMax - v
	}
	p.Analog = true
	p.AnalogValue = v
	return v, nil
}

// SetPWM drives a duty cycle in 0..platform.AnalogMax.
func (t *Tracker) SetPWM(pin int, duty int) error {
	p, err := t.record(pin)
	if err != nil {
		return err
	}
	if IsVirtual(pin) {
		return fmt.Errorf("%w: pwm on virtual pin %d", ErrModeInvalid, pin)
	}
	duty = max(0, min(duty, platform.AnalogMax))
	if !p.Mode.isOutput() {
		if err := t.SetMode(pin, ModeOutput); err != nil {
			return err
		}
	}
	raw := duty
	if p.Inverted {
		raw = platform.AnalogMax - duty
	}
	if err := t.io.PWM(pin, raw); err != nil {
		return fmt.Errorf("pwm pin %d: %w", pin, err)
	}
	p.PWM = true
	p.Duty = duty
	p.State = duty > 0
	return nil
}

// Get returns a copy of the pin record.
func (t *Tracker) Get(pin int) (Pin, bool) {
	p, ok := t.pins[pin]
	if !ok {
		return Pin{}, false
	}
	return *p, true
}

// Pins returns copies of all records sorted by pin number.
func (t *Tracker) Pins() []Pin {
	out := make([]Pin, 0, len(t.pins))
	for _, p := range t.pins {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Num < out[j].Num })
	return out
}

// Forget drops the record of pin so the next use starts from scratch.
func (t *Tracker) Forget(pin int) {
	delete(t.pins, pin)
}

// IO returns the underlying pin access.
func (t *Tracker) IO() platform.PinIO { return t.io }
