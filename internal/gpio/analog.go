package gpio

import (
	"fmt"
	"time"
)

// Analog sampling periods.
const (
	DefaultAnalogPeriod = 1000 * time.Millisecond
	MinAnalogPeriod     = 100 * time.Millisecond
)

// Analog samples a pin periodically and mirrors the raw value into a
// variable named after the device.
type Analog struct {
	Base
	period time.Duration
	last   time.Time
	value  int
	seen   bool
}

func newAnalog(b Base, period time.Duration) *Analog {
	a := &Analog{Base: b}
	a.SetPeriod(period)
	return a
}

// SetPeriod sets the sampling period; zero selects the default and short
// periods are raised to the minimum.
func (a *Analog) SetPeriod(d time.Duration) {
	if d <= 0 {
		d = DefaultAnalogPeriod
	}
	a.period = max(d, MinAnalogPeriod)
}

// Period returns the sampling period.
func (a *Analog) Period() time.Duration { return a.period }

// Canonical implements Device.
func (a *Analog) Canonical() []Event { return []Event{EventValue} }

// State reports whether the last sample was non-zero.
func (a *Analog) State() bool { return a.value > 0 }

// Value returns the last sample.
func (a *Analog) Value() int { return a.value }

// Status implements Device.
func (a *Analog) Status() string {
	return fmt.Sprintf("value=%d period=%dms", a.value, a.period.Milliseconds())
}

// Tick implements Device.
func (a *Analog) Tick(now time.Time) {
	if a.seen && now.Sub(a.last) < a.period {
		return
	}
	a.last = now
	v, err := a.tracker.AnalogRead(a.pin)
	if err != nil {
		if a.mgr != nil {
			a.mgr.logger.Error("analog read failed", "device", a.name, "error", err)
		}
		return
	}
	changed := !a.seen || v != a.value
	a.seen = true
	a.value = v
	if a.mgr != nil {
		a.mgr.setVar(a.name, v)
	}
	if changed {
		a.emit(EventValue)
	}
}
