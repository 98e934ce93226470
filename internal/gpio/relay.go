package gpio

import (
	"fmt"
	"time"
)

// Relay is a switched output with an optional off timer.
type Relay struct {
	Base
	offTimer time.Duration
	offAt    time.Time
	def      bool
	now      func() time.Time
}

func newRelay(b Base, now func() time.Time, def bool) *Relay {
	r := &Relay{Base: b, now: now, def: def}
	r.write(def)
	return r
}

// Canonical implements Device.
func (r *Relay) Canonical() []Event { return []Event{EventOn, EventOff} }

// State reports whether the relay is on.
func (r *Relay) State() bool {
	p, _ := r.tracker.Get(r.pin)
	return p.State
}

// Value implements Device.
func (r *Relay) Value() int { return boolInt(r.State()) }

// On switches the relay on and arms the off timer.
func (r *Relay) On() {
	r.write(true)
	if r.offTimer > 0 {
		r.offAt = r.now().Add(r.offTimer)
	}
	r.emit(EventOn)
}

// Off switches the relay off and disarms the off timer.
func (r *Relay) Off() {
	r.write(false)
	r.offAt = time.Time{}
	r.emit(EventOff)
}

// Toggle flips the relay.
func (r *Relay) Toggle() {
	if r.State() {
		r.Off()
	} else {
		r.On()
	}
}

// Set switches the relay to state.
func (r *Relay) Set(state bool) {
	if state {
		r.On()
	} else {
		r.Off()
	}
}

// SetOffTimer sets the automatic off delay; zero disables it.
func (r *Relay) SetOffTimer(d time.Duration) {
	r.offTimer = max(d, 0)
	if r.offTimer == 0 {
		r.offAt = time.Time{}
	} else if r.State() {
		r.offAt = r.now().Add(r.offTimer)
	}
}

// OffTimer returns the automatic off delay.
func (r *Relay) OffTimer() time.Duration { return r.offTimer }

// SetDefault sets the state the relay starts in.
func (r *Relay) SetDefault(on bool) { r.def = on }

// Default returns the start state.
func (r *Relay) Default() bool { return r.def }

// Status implements Device.
func (r *Relay) Status() string {
	s := "off"
	if r.State() {
		s = "on"
	}
	if r.offTimer > 0 {
		s += fmt.Sprintf(" offtimer=%dms", r.offTimer.Milliseconds())
	}
	if r.def {
		s += " default=on"
	}
	return s
}

// Tick implements Device.
func (r *Relay) Tick(now time.Time) {
	if !r.offAt.IsZero() && !now.Before(r.offAt) {
		r.Off()
	}
}
