package gpio

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/vars"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Spec describes a device to create.
type Spec struct {
	Pin      int
	Type     Type
	Name     string
	Inverted bool
	Cmd      string
	// Extra is type specific: long-press ms for buttons, debounce ms for
	// contacts and counters, 0|1 default for relays, sample period ms for
	// analogs.
	Extra string
}

// Manager owns all devices. Devices are unique by name and by pin.
type Manager struct {
	tracker *Tracker
	isr     *ISR
	exec    command.Executor
	vars    *vars.Store
	now     func() time.Time
	logger  Logger

	devices  []Device
	degraded func() bool
	reboot   func(force bool)
}

// NewManager creates a manager. exec runs device commands; store receives
// analog values. Either may be nil.
func NewManager(tracker *Tracker, exec command.Executor, store *vars.Store, now func() time.Time) *Manager {
	return &Manager{
		tracker: tracker,
		isr:     NewISR(tracker, now),
		exec:    exec,
		vars:    store,
		now:     now,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetDegraded installs the check for setup (access point) mode, in which
// device callbacks are suppressed.
func (m *Manager) SetDegraded(fn func() bool) { m.degraded = fn }

// SetReboot installs the action for the reset button.
func (m *Manager) SetReboot(fn func(force bool)) { m.reboot = fn }

// Tracker returns the pin tracker.
func (m *Manager) Tracker() *Tracker { return m.tracker }

// ISR returns the interrupt counters.
func (m *Manager) ISR() *ISR { return m.isr }

// Create builds a device from spec and takes ownership of it.
func (m *Manager) Create(spec Spec) (Device, error) {
	if !vars.ValidName(spec.Name) {
		return nil, fmt.Errorf("%w: %q", ErrNameInvalid, spec.Name)
	}
	if _, ok := m.Get(spec.Name); ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, spec.Name)
	}
	if !m.tracker.Valid(spec.Pin) {
		return nil, fmt.Errorf("%w: %d", ErrPinInvalid, spec.Pin)
	}
	if d, ok := m.ByPin(spec.Pin); ok {
		return nil, fmt.Errorf("%w: %d by %s", ErrPinInUse, spec.Pin, d.Name())
	}
	if spec.Type == TypeAnalog && IsVirtual(spec.Pin) {
		return nil, fmt.Errorf("%w: analog on virtual pin %d", ErrPinInvalid, spec.Pin)
	}

	m.tracker.Forget(spec.Pin)
	if err := m.tracker.SetInverted(spec.Pin, spec.Inverted); err != nil {
		return nil, err
	}
	if err := m.tracker.SetMode(spec.Pin, pinMode(spec.Type, spec.Inverted)); err != nil {
		return nil, err
	}

	b := Base{
		name:     spec.Name,
		typ:      spec.Type,
		pin:      spec.Pin,
		inverted: spec.Inverted,
		cmd:      spec.Cmd,
		debounce: DefaultDebounce,
		tracker:  m.tracker,
		mgr:      m,
	}
	extra, hasExtra := parseExtra(spec.Extra)

	var d Device
	switch spec.Type {
	case TypeButton, TypeReset:
		btn := newButton(b)
		if hasExtra && extra > 0 {
			btn.LongPress = time.Duration(extra) * time.Millisecond
		}
		d = btn
	case TypeContact, TypeCounter:
		if hasExtra && extra >= 0 {
			b.debounce = time.Duration(extra) * time.Millisecond
		}
		d = newContact(b)
	case TypeRelay:
		d = newRelay(b, m.now, hasExtra && extra != 0)
	case TypeLED:
		d = newLED(b)
	case TypeAnalog:
		d = newAnalog(b, time.Duration(extra)*time.Millisecond)
	case TypeVirtual:
		d = newVirtual(b)
	default:
		m.tracker.Forget(spec.Pin)
		return nil, fmt.Errorf("%w: %d", ErrTypeInvalid, spec.Type)
	}
	d.base().self = d
	if m.exec != nil {
		d.AddCallback(m.runCommand)
	}
	m.devices = append(m.devices, d)
	m.logger.Info("device added", "name", spec.Name, "type", spec.Type.String(), "pin", spec.Pin)
	return d, nil
}

func pinMode(t Type, inverted bool) Mode {
	switch t {
	case TypeRelay, TypeLED:
		return ModeOutput
	case TypeAnalog:
		return ModeInput
	}
	if inverted {
		return ModeInputPullUp
	}
	return ModeInput
}

func parseExtra(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// Delete removes the device and releases its pin.
func (m *Manager) Delete(name string) error {
	i := m.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	d := m.devices[i]
	if t := d.Type(); t == TypeRelay || t == TypeLED {
		_ = m.tracker.Write(d.Pin(), false)
	}
	b := d.base()
	b.mgr = nil
	b.callbacks = nil
	m.tracker.Forget(d.Pin())
	m.devices = slices.Delete(m.devices, i, i+1)
	m.logger.Info("device deleted", "name", name)
	return nil
}

func (m *Manager) index(name string) int {
	for i, d := range m.devices {
		if d.Name() == name {
			return i
		}
	}
	return -1
}

// Get looks a device up by name.
func (m *Manager) Get(name string) (Device, bool) {
	if i := m.index(name); i >= 0 {
		return m.devices[i], true
	}
	return nil, false
}

// ByPin looks a device up by pin.
func (m *Manager) ByPin(pin int) (Device, bool) {
	for _, d := range m.devices {
		if d.Pin() == pin {
			return d, true
		}
	}
	return nil, false
}

// Lookup accepts a device name or a pin number.
func (m *Manager) Lookup(ref string) (Device, bool) {
	if d, ok := m.Get(ref); ok {
		return d, true
	}
	if pin, err := strconv.Atoi(ref); err == nil {
		return m.ByPin(pin)
	}
	return nil, false
}

// List returns the devices in creation order.
func (m *Manager) List() []Device {
	return slices.Clone(m.devices)
}

// Len returns the number of devices.
func (m *Manager) Len() int { return len(m.devices) }

// Relay returns the named relay.
func (m *Manager) Relay(name string) (*Relay, error) {
	d, ok := m.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	r, ok := d.(*Relay)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongType, name, d.Type())
	}
	return r, nil
}

// LED returns the named LED.
func (m *Manager) LED(name string) (*LED, error) {
	d, ok := m.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	l, ok := d.(*LED)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongType, name, d.Type())
	}
	return l, nil
}

// Rename changes the name of the device on pin.
func (m *Manager) Rename(pin int, name string) error {
	d, ok := m.ByPin(pin)
	if !ok {
		return fmt.Errorf("%w: pin %d", ErrDeviceNotFound, pin)
	}
	if !vars.ValidName(name) {
		return fmt.Errorf("%w: %q", ErrNameInvalid, name)
	}
	if other, ok := m.Get(name); ok && other != d {
		return fmt.Errorf("%w: %s", ErrDeviceExists, name)
	}
	d.base().name = name
	return nil
}

// SetFriendly sets the display name of the device on pin.
func (m *Manager) SetFriendly(pin int, friendly string) error {
	d, ok := m.ByPin(pin)
	if !ok {
		return fmt.Errorf("%w: pin %d", ErrDeviceNotFound, pin)
	}
	d.base().friendly = friendly
	return nil
}

// SetDebounce sets the debounce of the device on pin.
func (m *Manager) SetDebounce(pin int, d time.Duration) error {
	dev, ok := m.ByPin(pin)
	if !ok {
		return fmt.Errorf("%w: pin %d", ErrDeviceNotFound, pin)
	}
	dev.base().debounce = max(d, 0)
	return nil
}

// SetCmd replaces the event command of the named device.
func (m *Manager) SetCmd(name, cmd string) error {
	d, ok := m.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	d.base().cmd = cmd
	return nil
}

// Drive sets a pin to state. A relay, LED or virtual device on the pin is
// switched through the device so its events fire.
func (m *Manager) Drive(pin int, state bool) error {
	if d, ok := m.ByPin(pin); ok {
		switch dev := d.(type) {
		case *Relay:
			dev.Set(state)
			return nil
		case *LED:
			dev.Set(state)
			return nil
		case *Virtual:
			dev.Set(state)
			return nil
		}
	}
	return m.tracker.Write(pin, state)
}

// Loop ticks every device. Devices deleted by an earlier callback in the
// same pass are skipped.
func (m *Manager) Loop(now time.Time) {
	for _, d := range slices.Clone(m.devices) {
		if d.base().mgr != m {
			continue
		}
		d.Tick(now)
	}
}

func (m *Manager) fire(d Device, ev Event) {
	reset := d.Type() == TypeReset && ev == EventReset
	if m.degraded != nil && m.degraded() && !reset {
		m.logger.Debug("event suppressed", "device", d.Name(), "event", ev.String())
		return
	}
	m.logger.Debug("device event", "device", d.Name(), "event", ev.String())
	for _, cb := range d.base().callbacks {
		cb(d, ev, d.Cmd())
	}
	if reset && m.reboot != nil {
		m.logger.Warn("reset button released, rebooting", "device", d.Name())
		m.reboot(true)
	}
}

func (m *Manager) runCommand(d Device, ev Event, cmd string) {
	section := Section(cmd, ev, d.Canonical())
	if section == "" {
		return
	}
	m.exec.Exec(section, Locals(d, ev))
}

func (m *Manager) setVar(name string, v int) {
	if m.vars != nil {
		_ = m.vars.Set(name, strconv.Itoa(v))
	}
}

// Let evaluates "b", "!b" or "b op c" with op one of & | ^ over pin levels
// and drives dst with the result. Operands are pin numbers or device names.
func (m *Manager) Let(dst string, expr []string) (bool, error) {
	pin, err := m.resolve(dst)
	if err != nil {
		return false, err
	}
	a, rest, err := m.operand(expr)
	if err != nil {
		return false, err
	}
	result := a
	if len(rest) > 0 {
		op := rest[0]
		b, tail, err := m.operand(rest[1:])
		if err != nil {
			return false, err
		}
		if len(tail) > 0 {
			return false, fmt.Errorf("%w: trailing %q", ErrModeInvalid, strings.Join(tail, " "))
		}
		switch op {
		case "&":
			result = a && b
		case "|":
			result = a || b
		case "^":
			result = a != b
		default:
			return false, fmt.Errorf("%w: operator %q", ErrModeInvalid, op)
		}
	}
	return result, m.Drive(pin, result)
}

func (m *Manager) operand(tokens []string) (bool, []string, error) {
	if len(tokens) == 0 {
		return false, nil, fmt.Errorf("%w: missing operand", ErrModeInvalid)
	}
	tok := tokens[0]
	if tok == "!" {
		v, rest, err := m.operand(tokens[1:])
		return !v, rest, err
	}
	negate := false
	if strings.HasPrefix(tok, "!") {
		negate = true
		tok = tok[1:]
	}
	pin, err := m.resolve(tok)
	if err != nil {
		return false, nil, err
	}
	v, err := m.tracker.Level(pin)
	if err != nil {
		return false, nil, err
	}
	return v != negate, tokens[1:], nil
}

func (m *Manager) resolve(ref string) (int, error) {
	if d, ok := m.Get(ref); ok {
		return d.Pin(), nil
	}
	pin, err := strconv.Atoi(ref)
	if err != nil || !m.tracker.Valid(pin) {
		return 0, fmt.Errorf("%w: %q", ErrPinInvalid, ref)
	}
	return pin, nil
}
