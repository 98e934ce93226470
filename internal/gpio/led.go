package gpio

import (
	"fmt"
	"time"
)

// Pattern is a named blink or flash timing.
type Pattern struct {
	Period time.Duration
	Duty   int // percent of the period the LED is on
	Count  int // cycles for flash
}

// Patterns are the named LED timings.
var Patterns = map[string]Pattern{
	"ok":      {Period: 100 * time.Millisecond, Duty: 50, Count: 1},
	"error":   {Period: 1000 * time.Millisecond, Duty: 50, Count: 5},
	"busy":    {Period: 250 * time.Millisecond, Duty: 50, Count: 3},
	"flash":   {Period: 50 * time.Millisecond, Duty: 50, Count: 1},
	"data":    {Period: 30 * time.Millisecond, Duty: 50, Count: 1},
	"wait":    {Period: 1500 * time.Millisecond, Duty: 10, Count: 2},
	"connect": {Period: 500 * time.Millisecond, Duty: 50, Count: 4},
}

type ledMode int

const (
	ledSteady ledMode = iota
	ledBlink
	ledFlash
)

// LED is an output that can be steady, blink continuously or flash a
// number of cycles before returning to its previous state.
type LED struct {
	Base
	mode   ledMode
	period time.Duration
	duty   int
	count  int
	start  time.Time
	prior  bool
	lit    bool
}

func newLED(b Base) *LED {
	l := &LED{Base: b}
	l.write(false)
	return l
}

// Canonical implements Device.
func (l *LED) Canonical() []Event { return []Event{EventOn, EventOff} }

// State reports whether the LED is lit, or blinking.
func (l *LED) State() bool {
	if l.mode == ledBlink {
		return true
	}
	if l.mode == ledFlash {
		return l.prior
	}
	return l.lit
}

// Value implements Device.
func (l *LED) Value() int { return boolInt(l.State()) }

// On lights the LED and stops blinking.
func (l *LED) On() {
	l.mode = ledSteady
	l.set(true)
	l.emit(EventOn)
}

// Off darkens the LED and stops blinking.
func (l *LED) Off() {
	l.mode = ledSteady
	l.set(false)
	l.emit(EventOff)
}

// Toggle flips the steady state.
func (l *LED) Toggle() {
	if l.State() {
		l.Off()
	} else {
		l.On()
	}
}

// Set switches the LED to state.
func (l *LED) Set(state bool) {
	if state {
		l.On()
	} else {
		l.Off()
	}
}

// Blink starts continuous blinking.
func (l *LED) Blink(period time.Duration, duty int, now time.Time) error {
	if err := checkTiming(period, duty); err != nil {
		return err
	}
	l.mode = ledBlink
	l.period, l.duty, l.count = period, duty, 0
	l.start = now
	l.set(duty > 0)
	return nil
}

// Flash blinks count cycles, then restores the state before the flash.
func (l *LED) Flash(period time.Duration, duty, count int, now time.Time) error {
	if err := checkTiming(period, duty); err != nil {
		return err
	}
	if count < 1 {
		return fmt.Errorf("%w: flash count %d", ErrModeInvalid, count)
	}
	if l.mode != ledFlash {
		l.prior = l.State()
	}
	l.mode = ledFlash
	l.period, l.duty, l.count = period, duty, count
	l.start = now
	l.set(duty > 0)
	return nil
}

// BlinkPattern blinks with a named pattern.
func (l *LED) BlinkPattern(name string, now time.Time) error {
	p, ok := Patterns[name]
	if !ok {
		return fmt.Errorf("%w: pattern %q", ErrModeInvalid, name)
	}
	return l.Blink(p.Period, p.Duty, now)
}

// FlashPattern flashes a named pattern.
func (l *LED) FlashPattern(name string, now time.Time) error {
	p, ok := Patterns[name]
	if !ok {
		return fmt.Errorf("%w: pattern %q", ErrModeInvalid, name)
	}
	return l.Flash(p.Period, p.Duty, p.Count, now)
}

func checkTiming(period time.Duration, duty int) error {
	if period <= 0 {
		return fmt.Errorf("%w: period %v", ErrModeInvalid, period)
	}
	if duty < 0 || duty > 100 {
		return fmt.Errorf("%w: duty %d", ErrModeInvalid, duty)
	}
	return nil
}

func (l *LED) set(on bool) {
	l.lit = on
	l.write(on)
}

// Lit reports the current physical (logical) output.
func (l *LED) Lit() bool { return l.lit }

// Status implements Device.
func (l *LED) Status() string {
	switch l.mode {
	case ledBlink:
		return fmt.Sprintf("blink %dms %d%%", l.period.Milliseconds(), l.duty)
	case ledFlash:
		return fmt.Sprintf("flash %dms %d%% x%d", l.period.Milliseconds(), l.duty, l.count)
	}
	if l.lit {
		return "on"
	}
	return "off"
}

// Tick implements Device.
func (l *LED) Tick(now time.Time) {
	if l.mode == ledSteady {
		return
	}
	elapsed := now.Sub(l.start)
	if elapsed < 0 {
		elapsed = 0
	}
	if l.mode == ledFlash && elapsed >= l.period*time.Duration(l.count) {
		l.mode = ledSteady
		l.set(l.prior)
		return
	}
	phase := elapsed % l.period
	want := phase < l.period*time.Duration(l.duty)/100
	if want != l.lit {
		l.set(want)
	}
}
