package platform

import (
	"fmt"
	"sync"
)

// MemoryPins is an in-memory PinIO. Inputs are driven with SetLevel and
// SetAnalog; outputs are observed with Level and Duty.
type MemoryPins struct {
	mu     sync.Mutex
	count  int
	modes  map[int]Mode
	levels map[int]bool
	analog map[int]int
	duty   map[int]int
	isr    map[int]func(bool)
}

// NewMemoryPins creates a pin bank with count physical pins.
func NewMemoryPins(count int) *MemoryPins {
	return &MemoryPins{
		count:  count,
		modes:  make(map[int]Mode),
		levels: make(map[int]bool),
		analog: make(map[int]int),
		duty:   make(map[int]int),
		isr:    make(map[int]func(bool)),
	}
}

func (m *MemoryPins) check(pin int) error {
	if pin < 0 || pin >= m.count {
		return fmt.Errorf("%w: %d", ErrPinInvalid, pin)
	}
	return nil
}

// SetMode implements PinIO. Pull-ups start high.
func (m *MemoryPins) SetMode(pin int, mode Mode) error {
	if err := m.check(pin); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
	if mode == ModeInputPullUp {
		if _, set := m.levels[pin]; !set {
			m.levels[pin] = true
		}
	}
	return nil
}

// Write implements PinIO.
func (m *MemoryPins) Write(pin int, high bool) error {
	if err := m.check(pin); err != nil {
		return err
	}
	m.mu.Lock()
	m.levels[pin] = high
	m.mu.Unlock()
	return nil
}

// Read implements PinIO.
func (m *MemoryPins) Read(pin int) (bool, error) {
	if err := m.check(pin); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

// AnalogRead implements PinIO.
func (m *MemoryPins) AnalogRead(pin int) (int, error) {
	if err := m.check(pin); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analog[pin], nil
}

// PWM implements PinIO.
func (m *MemoryPins) PWM(pin int, duty int) error {
	if err := m.check(pin); err != nil {
		return err
	}
	duty = max(0, min(duty, AnalogMax))
	m.mu.Lock()
	m.duty[pin] = duty
	m.levels[pin] = duty > 0
	m.mu.Unlock()
	return nil
}

// AttachInterrupt implements PinIO.
func (m *MemoryPins) AttachInterrupt(pin int, fn func(bool)) error {
	if err := m.check(pin); err != nil {
		return err
	}
	m.mu.Lock()
	m.isr[pin] = fn
	m.mu.Unlock()
	return nil
}

// DetachInterrupt implements PinIO.
func (m *MemoryPins) DetachInterrupt(pin int) error {
	if err := m.check(pin); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.isr, pin)
	m.mu.Unlock()
	return nil
}

// SetLevel drives an input from outside. An attached interrupt fires when
// the level changes.
func (m *MemoryPins) SetLevel(pin int, high bool) {
	m.mu.Lock()
	prev := m.levels[pin]
	m.levels[pin] = high
	fn := m.isr[pin]
	m.mu.Unlock()
	if fn != nil && prev != high {
		fn(high)
	}
}

// SetAnalog sets the raw value AnalogRead returns for pin.
func (m *MemoryPins) SetAnalog(pin int, value int) {
	m.mu.Lock()
	m.analog[pin] = value
	m.mu.Unlock()
}

// Level returns the current physical level of pin.
func (m *MemoryPins) Level(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// Mode returns the last mode set on pin.
func (m *MemoryPins) Mode(pin int) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modes[pin]
}

// Duty returns the last PWM duty written to pin.
func (m *MemoryPins) Duty(pin int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty[pin]
}
