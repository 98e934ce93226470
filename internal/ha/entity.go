package ha

import (
	"fmt"
	"strings"
)

// Type is the Home Assistant component of an entity.
type Type int

const (
	TypeSensor Type = iota
	TypeButton
	TypeSwitch
	TypeSelect
	TypeNumber
	TypeText
	TypeBinary
	TypeLight
	TypeSiren
	TypeAlarm
	TypeNotify
	TypeEvent
	TypeDiagnostic
)

var typeNames = [...]string{
	"sensor", "button", "switch", "select", "number", "text", "binary",
	"light", "siren", "alarm", "notify", "event", "diagnostic",
}

// component is the discovery path segment for each type.
var components = [...]string{
	"sensor", "button", "switch", "select", "number", "text", "binary_sensor",
	"light", "siren", "alarm_control_panel", "notify", "event", "sensor",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Component returns the discovery component name, e.g. binary_sensor.
func (t Type) Component() string {
	if t < 0 || int(t) >= len(components) {
		return "sensor"
	}
	return components[t]
}

// Commandable reports whether entities of this type accept commands.
func (t Type) Commandable() bool {
	switch t {
	case TypeButton, TypeSwitch, TypeSelect, TypeNumber, TypeText, TypeLight, TypeSiren, TypeAlarm, TypeNotify:
		return true
	}
	return false
}

// Binary reports whether the state is rendered as ON/OFF.
func (t Type) Binary() bool {
	switch t {
	case TypeSwitch, TypeBinary, TypeLight, TypeSiren:
		return true
	}
	return false
}

// ParseType parses a type name. "binary_sensor" is accepted for binary.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(s)
	if s == "binary_sensor" {
		return TypeBinary, nil
	}
	for i, n := range typeNames {
		if n == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrTypeInvalid, s)
}

// Category is the entity category.
type Category int

const (
	CategoryNone Category = iota
	CategoryConfig
	CategoryDiagnostic
)

func (c Category) String() string {
	switch c {
	case CategoryConfig:
		return "config"
	case CategoryDiagnostic:
		return "diagnostic"
	default:
		return ""
	}
}

// StateClass is the sensor state class.
type StateClass int

const (
	StateClassNone StateClass = iota
	StateClassMeasurement
	StateClassTotal
	StateClassTotalIncreasing
)

func (s StateClass) String() string {
	switch s {
	case StateClassMeasurement:
		return "measurement"
	case StateClassTotal:
		return "total"
	case StateClassTotalIncreasing:
		return "total_increasing"
	default:
		return ""
	}
}

// Entity is one discoverable control or sensor.
type Entity struct {
	Type     Type
	Name     string
	Friendly string
	// Source names the backing device, sensor or variable.
	Source      string
	Category    Category
	StateClass  StateClass
	Unit        string
	DeviceClass string
	Icon        string
	// Options are the choices of a select entity.
	Options []string
	// Min, Max and Step bound a number entity.
	Min, Max, Step float64
	// Retain makes the broker keep the last command so it re-applies after a
	// reboot. Config entities always retain.
	Retain bool

	uid        string
	available  bool
	state      string
	registered bool
}

// NewEntity creates an entity with a sanitised name. The entity starts
// available.
func NewEntity(typ Type, name, friendly, source string) (*Entity, error) {
	n := Sanitize(name)
	if n == "" {
		return nil, fmt.Errorf("%w: %q", ErrNameInvalid, name)
	}
	if friendly == "" {
		friendly = name
	}
	e := &Entity{Type: typ, Name: n, Friendly: friendly, Source: source, available: true}
	if typ == TypeDiagnostic {
		e.Category = CategoryDiagnostic
	}
	return e, nil
}

// UID returns the unique id, set when the entity joins a device.
func (e *Entity) UID() string { return e.uid }

// Available reports the availability flag.
func (e *Entity) Available() bool { return e.available }

// State returns the last state set.
func (e *Entity) State() string { return e.state }

// Registered reports whether the discovery document is published.
func (e *Entity) Registered() bool { return e.registered }

// RetainCommand reports whether commands to the entity are retained.
func (e *Entity) RetainCommand() bool {
	return e.Retain || e.Category == CategoryConfig
}

// FormatState renders a raw value for the entity type. Binary types map
// 1/on/true to ON and everything else to OFF.
func (e *Entity) FormatState(raw string) string {
	if !e.Type.Binary() {
		return raw
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "on", "true", "yes":
		return "ON"
	default:
		return "OFF"
	}
}

// Sanitize lower-cases s and keeps a-z, 0-9 and underscore. Spaces, dashes
// and dots become underscores; anything else is dropped.
func Sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.':
			b.WriteByte('_')
		}
	}
	return b.String()
}
