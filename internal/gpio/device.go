package gpio

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type is the kind of a device.
type Type int

// Device types.
const (
	TypeButton Type = iota
	TypeContact
	TypeCounter
	TypeRelay
	TypeLED
	TypeAnalog
	TypeVirtual
	TypeReset
)

var typeNames = []string{"button", "contact", "counter", "relay", "led", "analog", "virtual", "reset"}

// String returns the type name used by gpio add.
func (t Type) String() string {
	if int(t) >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// ParseType parses a device type name.
func ParseType(s string) (Type, error) {
	for i, n := range typeNames {
		if strings.EqualFold(s, n) {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrTypeInvalid, s)
}

// Event identifies what happened on a device.
type Event int

// Events.
const (
	EventPressed Event = iota
	EventLong
	EventSingle
	EventDouble
	EventMulti
	EventCleared
	EventReset
	EventClose
	EventOpen
	EventOn
	EventOff
	EventValue
	EventChanged
)

var eventNames = []string{
	"pressed", "long", "single", "double", "multi", "cleared", "reset",
	"close", "open", "on", "off", "value", "changed",
}

// String returns the event name used in #event command sections.
func (e Event) String() string {
	if int(e) >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// ParseEvent parses an event name.
func ParseEvent(s string) (Event, bool) {
	for i, n := range eventNames {
		if s == n {
			return Event(i), true
		}
	}
	return 0, false
}

// Callback receives device events in registration order.
type Callback func(d Device, ev Event, cmd string)

// Device is a pin-bound entity owned by the Manager.
type Device interface {
	Name() string
	Friendly() string
	Type() Type
	Pin() int
	Inverted() bool
	Cmd() string
	Debounce() time.Duration
	// State is the logical on/closed/pressed state.
	State() bool
	// Value is the numeric value: a press or close count, an analog sample
	// or the state as 0/1.
	Value() int
	// Canonical lists the events the leading command section runs on.
	Canonical() []Event
	// Status is a short state description for gpio list.
	Status() string
	// Tick advances the state machine.
	Tick(now time.Time)
	AddCallback(cb Callback)

	base() *Base
}

// Base holds the fields common to every device.
type Base struct {
	name     string
	friendly string
	typ      Type
	pin      int
	inverted bool
	cmd      string
	debounce time.Duration

	tracker   *Tracker
	mgr       *Manager
	self      Device
	callbacks []Callback
}

func (b *Base) base() *Base { return b }

// Name returns the unique device name.
func (b *Base) Name() string { return b.name }

// Friendly returns the display name, defaulting to the name.
func (b *Base) Friendly() string {
	if b.friendly == "" {
		return b.name
	}
	return b.friendly
}

// Type returns the device type.
func (b *Base) Type() Type { return b.typ }

// Pin returns the pin the device owns.
func (b *Base) Pin() int { return b.pin }

// Inverted reports whether the pin is active low.
func (b *Base) Inverted() bool { return b.inverted }

// Cmd returns the event command string.
func (b *Base) Cmd() string { return b.cmd }

// Debounce returns the debounce period.
func (b *Base) Debounce() time.Duration { return b.debounce }

// AddCallback appends cb to the callback list.
func (b *Base) AddCallback(cb Callback) {
	b.callbacks = append(b.callbacks, cb)
}

func (b *Base) emit(ev Event) {
	if b.mgr != nil {
		b.mgr.fire(b.self, ev)
		return
	}
	for _, cb := range b.callbacks {
		cb(b.self, ev, b.cmd)
	}
}

func (b *Base) write(state bool) {
	if err := b.tracker.Write(b.pin, state); err != nil && b.mgr != nil {
		b.mgr.logger.Error("pin write failed", "device", b.name, "pin", b.pin, "error", err)
	}
}

func (b *Base) read() bool {
	v, err := b.tracker.Read(b.pin)
	if err != nil && b.mgr != nil {
		b.mgr.logger.Error("pin read failed", "device", b.name, "pin", b.pin, "error", err)
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Section returns the part of cmd that runs for ev. A command may be split
// into sections with #event markers; text before the first marker runs on
// the canonical events.
//
//	set B $STATE #long led l1 blink error #reset reboot
func Section(cmd string, ev Event, canonical []Event) string {
	type mark struct {
		ev         Event
		start, end int
	}
	var marks []mark
	for i := 0; i < len(cmd); i++ {
		if cmd[i] != '#' || (i > 0 && cmd[i-1] != ' ' && cmd[i-1] != '\t') {
			continue
		}
		j := i + 1
		for j < len(cmd) && cmd[j] != ' ' && cmd[j] != '\t' {
			j++
		}
		if e, ok := ParseEvent(cmd[i+1 : j]); ok {
			marks = append(marks, mark{ev: e, start: i, end: j})
		}
	}
	if len(marks) == 0 {
		for _, c := range canonical {
			if c == ev {
				return strings.TrimSpace(cmd)
			}
		}
		return ""
	}
	for k, m := range marks {
		if m.ev != ev {
			continue
		}
		stop := len(cmd)
		if k+1 < len(marks) {
			stop = marks[k+1].start
		}
		return strings.TrimSpace(cmd[m.end:stop])
	}
	for _, c := range canonical {
		if c == ev {
			return strings.TrimSpace(cmd[:marks[0].start])
		}
	}
	return ""
}

// Locals returns the substitution values for a device event.
func Locals(d Device, ev Event) map[string]string {
	state := boolInt(d.State())
	return map[string]string{
		"VALUE":   strconv.Itoa(d.Value()),
		"STATE":   strconv.Itoa(state),
		"COUNTER": strconv.Itoa(d.Value()),
		"NAME":    d.Name(),
		"EVENT":   ev.String(),
	}
}
