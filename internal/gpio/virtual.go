package gpio

import "time"

// Virtual follows the level of its pin, normally a virtual pin driven by
// gpio set or gpio let, and reports changes.
type Virtual struct {
	Base
	state bool
}

func newVirtual(b Base) *Virtual {
	v := &Virtual{Base: b}
	v.state, _ = b.tracker.Level(b.pin)
	return v
}

// Canonical implements Device.
func (v *Virtual) Canonical() []Event { return []Event{EventChanged} }

// State implements Device.
func (v *Virtual) State() bool { return v.state }

// Value implements Device.
func (v *Virtual) Value() int { return boolInt(v.state) }

// Set drives the pin; the change is reported on the next tick.
func (v *Virtual) Set(state bool) {
	v.write(state)
}

// Status implements Device.
func (v *Virtual) Status() string {
	if v.state {
		return "high"
	}
	return "low"
}

// Tick implements Device.
func (v *Virtual) Tick(time.Time) {
	s, err := v.tracker.Level(v.pin)
	if err != nil || s == v.state {
		return
	}
	v.state = s
	v.emit(EventChanged)
}
