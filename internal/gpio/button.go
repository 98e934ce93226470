package gpio

import (
	"fmt"
	"time"
)

// Button timing defaults.
const (
	DefaultDebounce    = 100 * time.Millisecond
	DefaultLongPress   = 10 * time.Second
	DefaultMultiWindow = 250 * time.Millisecond
	DefaultConfirm     = 2 * time.Second
)

type buttonState int

const (
	buttonIdle buttonState = iota
	buttonPressed
	buttonReleased
	buttonConfirm
	buttonLong
)

var buttonStateNames = []string{"idle", "pressed", "released", "confirm", "long"}

// Button counts presses into single, double and multi events and reports
// long presses. A reset device is a button whose reset event reboots.
type Button struct {
	Base
	LongPress   time.Duration
	MultiWindow time.Duration
	Confirm     time.Duration

	state   buttonState
	counter int
	pressed bool
	since   time.Time
	pressAt time.Time
	relAt   time.Time
}

func newButton(b Base) *Button {
	return &Button{
		Base:        b,
		LongPress:   DefaultLongPress,
		MultiWindow: DefaultMultiWindow,
		Confirm:     DefaultConfirm,
	}
}

// Canonical implements Device.
func (b *Button) Canonical() []Event {
	if b.typ == TypeReset {
		return []Event{EventReset}
	}
	return []Event{EventSingle}
}

// State reports whether the button is held down.
func (b *Button) State() bool { return b.pressed }

// Value returns the press counter of the current burst.
func (b *Button) Value() int { return b.counter }

// Status implements Device.
func (b *Button) Status() string {
	return fmt.Sprintf("%s presses=%d", buttonStateNames[b.state], b.counter)
}

// Tick implements Device.
func (b *Button) Tick(now time.Time) {
	high := b.read()
	b.pressed = high
	switch b.state {
	case buttonIdle:
		if high {
			b.press(now)
		}
	case buttonPressed:
		switch {
		case high && now.Sub(b.pressAt) >= b.LongPress:
			b.state = buttonLong
			b.emit(EventLong)
		case !high && now.Sub(b.pressAt) > b.debounce:
			b.state = buttonReleased
			b.relAt = now
		case !high:
			// glitch shorter than the debounce
			b.counter--
			if b.counter > 0 {
				b.state = buttonReleased
			} else {
				b.state = buttonIdle
			}
		}
	case buttonReleased:
		switch {
		case high && now.Sub(b.relAt) < b.debounce:
			b.state = buttonPressed
		case high:
			b.press(now)
		case now.Sub(b.relAt) >= b.MultiWindow:
			switch {
			case b.counter == 1:
				b.emit(EventSingle)
			case b.counter == 2:
				b.emit(EventDouble)
			default:
				b.emit(EventMulti)
			}
			b.state = buttonConfirm
			b.since = now
		}
	case buttonConfirm:
		switch {
		case high:
			b.counter = 0
			b.press(now)
		case now.Sub(b.since) >= b.Confirm:
			b.emit(EventCleared)
			b.counter = 0
			b.state = buttonIdle
		}
	case buttonLong:
		if !high {
			b.emit(EventReset)
			b.counter = 0
			b.state = buttonIdle
		}
	}
}

func (b *Button) press(now time.Time) {
	b.counter++
	b.state = buttonPressed
	b.pressAt = now
	b.emit(EventPressed)
}
